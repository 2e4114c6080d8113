package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend/energyvad"
	"inferd/internal/backend/llamacpp"
	"inferd/internal/component"
	"inferd/internal/config"
	"inferd/internal/download"
	"inferd/internal/events"
	"inferd/internal/httpapi"
	"inferd/internal/platform"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Flags with environment variable defaults
	addr := flag.String("addr", envOr("INFERD_ADDR", ""), "HTTP listen address, e.g. :8080")
	modelsDir := flag.String("models-dir", envOr("INFERD_MODELS_DIR", ""), "Directory holding model artifacts")
	configPath := flag.String("config", envOr("INFERD_CONFIG", ""), "Optional config file (.yaml/.json/.toml)")
	logLevel := flag.String("log-level", envOr("INFERD_LOG_LEVEL", ""), "Log level: trace/debug/info/warn/error")
	llamaCtx := flag.Int("llama-ctx", 2048, "Context window for the llama backend")
	llamaThreads := flag.Int("llama-threads", 4, "Threads for the llama backend")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load config")
		}
		cfg = loaded
	}
	// Flags override the file.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *modelsDir != "" {
		cfg.ModelsDir = *modelsDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg = config.Defaults(cfg)

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	dir, err := registry.ExpandPath(cfg.ModelsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("resolve models dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("create models dir")
	}

	bus := events.NewBus(log)
	bus.Subscribe(events.CategoryDownload, events.SinkPublic, func(evt events.Event) {
		log.Debug().Str("type", evt.Type).Interface("props", evt.Properties).Msg("download event")
	})
	bus.Subscribe(events.CategoryModel, events.SinkPublic, func(evt events.Event) {
		log.Info().Str("type", evt.Type).Interface("props", evt.Properties).Msg("lifecycle event")
	})

	mods := registry.NewModules(log)
	svcs := registry.NewServices(log)
	if err := energyvad.Register(mods, svcs, log); err != nil {
		log.Fatal().Err(err).Msg("register energy vad")
	}
	if err := llamacpp.Register(mods, svcs, log, *llamaCtx, *llamaThreads); err != nil {
		log.Fatal().Err(err).Msg("register llamacpp")
	}

	orch := download.New(cfg.Download, bus, log)
	transfer := platform.NewTransfer(orch, dir, log)

	cc := component.Config{Services: svcs, Bus: bus, Fetcher: transfer, Logger: log}
	llm := component.NewLLM(cc)
	stt := component.NewSTT(cc)
	tts := component.NewTTS(cc)
	vad := component.NewVAD(cc)

	mux := httpapi.NewMux(httpapi.Deps{
		Modules:  mods,
		Services: svcs,
		Orch:     orch,
		Transfer: transfer,
		LLM:      llm,
		STT:      stt,
		TTS:      tts,
		VAD:      vad,
		Models: func() []types.ModelArtifact {
			artifacts, err := registry.ScanDir(dir)
			if err != nil {
				log.Warn().Err(err).Msg("scan models dir")
				return nil
			}
			return artifacts
		},
		Log: log,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("models_dir", dir).
			Bool("llama", llamacpp.Built).
			Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown")
	}
	orch.Shutdown()
	for _, c := range []*component.Component{llm.Component, stt.Component, tts.Component, vad.Component} {
		c.Reset()
	}
}
