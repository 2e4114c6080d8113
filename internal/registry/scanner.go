package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"inferd/pkg/types"
)

// modelExtensions maps recognized artifact extensions to a format hint.
var modelExtensions = map[string]string{
	".gguf": "gguf",
	".onnx": "onnx",
	".bin":  "bin",
}

// ScanDir scans a directory for model artifacts and builds a catalog from
// filenames. ID is the full filename (including extension); Path is the
// absolute file path.
func ScanDir(dir string) ([]types.ModelArtifact, error) {
	abs, err := ExpandPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var artifacts []types.ModelArtifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		format, ok := modelExtensions[strings.ToLower(filepath.Ext(name))]
		if !ok {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		artifacts = append(artifacts, types.ModelArtifact{
			ID:        name,
			Name:      name,
			Path:      filepath.Join(abs, name),
			Format:    format,
			SizeBytes: size,
		})
	}
	return artifacts, nil
}

// ExpandPath expands a leading '~' to the user's home directory and returns
// an absolute path.
func ExpandPath(path string) (string, error) {
	if path != "" && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return abs, nil
}
