package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DownloadConfig holds download orchestration parameters. Set once at
// startup; changing it requires recreating the orchestrator.
type DownloadConfig struct {
	MaxConcurrentDownloads  int     `json:"max_concurrent_downloads" yaml:"max_concurrent_downloads" toml:"max_concurrent_downloads"`
	RequestTimeoutSeconds   int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	MaxRetryAttempts        int     `json:"max_retry_attempts" yaml:"max_retry_attempts" toml:"max_retry_attempts"`
	RetryDelaySeconds       float64 `json:"retry_delay_seconds" yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
	AllowCellular           bool    `json:"allow_cellular" yaml:"allow_cellular" toml:"allow_cellular"`
	AllowConstrainedNetwork bool    `json:"allow_constrained_network" yaml:"allow_constrained_network" toml:"allow_constrained_network"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by Defaults in main.
type Config struct {
	Addr      string         `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string         `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	LogLevel  string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	Download  DownloadConfig `json:"download" yaml:"download" toml:"download"`
}

// Defaults fills unspecified fields in place and returns the config.
func Defaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "~/models"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Download.MaxConcurrentDownloads <= 0 {
		cfg.Download.MaxConcurrentDownloads = 3
	}
	if cfg.Download.RequestTimeoutSeconds <= 0 {
		cfg.Download.RequestTimeoutSeconds = 300
	}
	if cfg.Download.MaxRetryAttempts <= 0 {
		cfg.Download.MaxRetryAttempts = 3
	}
	if cfg.Download.RetryDelaySeconds <= 0 {
		cfg.Download.RetryDelaySeconds = 2
	}
	return cfg
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
