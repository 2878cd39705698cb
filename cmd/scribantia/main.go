// Command scribantia runs the live captioning agent: a control API that
// joins websocket conference rooms, transcribes every speaker, and publishes
// interim and final captions (plus translations) back into the room.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scribantia/scribantia/internal/app"
	"github.com/scribantia/scribantia/internal/caption"
	"github.com/scribantia/scribantia/internal/config"
	"github.com/scribantia/scribantia/internal/controlapi"
	"github.com/scribantia/scribantia/internal/health"
	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/internal/pipeline"
	"github.com/scribantia/scribantia/internal/session"
	"github.com/scribantia/scribantia/pkg/provider/llm"
	"github.com/scribantia/scribantia/pkg/provider/llm/anyllm"
	"github.com/scribantia/scribantia/pkg/provider/stt"
	openaistt "github.com/scribantia/scribantia/pkg/provider/stt/openai"
	"github.com/scribantia/scribantia/pkg/provider/stt/whisperhttp"
	"github.com/scribantia/scribantia/pkg/room/wsroom"
)

const shutdownTimeout = 20 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scribantia: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scribantia: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("scribantia starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"room_server", cfg.Room.ServerURL,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers: Prometheus-bridged metrics plus tracing.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "scribantia"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	sttProvider, err := buildSTTProvider(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to build stt provider", "err", err)
		return 1
	}
	llmProvider, err := buildLLMProvider(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	var roomOpts []wsroom.Option
	if cfg.Room.Token != "" {
		roomOpts = append(roomOpts, wsroom.WithToken(cfg.Room.Token))
	}
	platform, err := wsroom.New(cfg.Room.ServerURL, roomOpts...)
	if err != nil {
		slog.Error("failed to create room platform", "err", err)
		return 1
	}

	sessions := app.NewSessionManager(app.SessionManagerConfig{
		Platform:        platform,
		STT:             sttProvider,
		LLM:             llmProvider,
		Session:         sessionConfig(cfg),
		SendChat:        cfg.Agent.SendChat,
		CleanupInterval: time.Duration(cfg.Agent.CleanupIntervalSeconds) * time.Second,
		Metrics:         metrics,
		Logger:          logger,
	})
	go sessions.RunCleanup(ctx)

	// HTTP surface: control API, probes, Prometheus scrape endpoint.
	mux := http.NewServeMux()
	controlapi.New(sessions, logger).Register(mux)
	health.New(nil).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    listenAddr(cfg),
		Handler: observe.Middleware(metrics)(mux),
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("control api listening", "addr", srv.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting control requests first, then flush every session so
	// mid-sentence buffers still produce their final captions.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := sessions.StopAll(shutdownCtx); err != nil {
		slog.Error("session shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildSTTProvider constructs the configured speech-to-text provider.
func buildSTTProvider(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "", "openai":
		var opts []openaistt.Option
		if entry.Model != "" {
			opts = append(opts, openaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openaistt.WithBaseURL(entry.BaseURL))
		}
		return openaistt.New(entry.APIKey, opts...)

	case "whisper":
		var opts []whisperhttp.Option
		if entry.Model != "" {
			opts = append(opts, whisperhttp.WithModel(entry.Model))
		}
		return whisperhttp.New(entry.BaseURL, opts...)

	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

// buildLLMProvider constructs the translation backend, or returns nil when no
// LLM is configured (translation disabled).
func buildLLMProvider(entry config.ProviderEntry) (llm.Provider, error) {
	if entry.Name == "" {
		return nil, nil
	}
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// sessionConfig maps the YAML pipeline tuning onto the per-room session
// configuration.
func sessionConfig(cfg *config.Config) session.Config {
	p := cfg.Pipeline
	return session.Config{
		Pipeline: pipeline.Config{
			Aggregator: pipeline.AggregatorConfig{
				TargetMs:     p.BufferTargetMs,
				OverlapMs:    p.OverlapMs,
				VADThreshold: p.VADThreshold,
			},
			Filter: caption.FilterConfig{
				Blocklist:          p.Blocklist,
				ShortHighRMS:       p.ShortHighRMS,
				RepeatWindow:       time.Duration(p.RepeatWindowMs) * time.Millisecond,
				NearRepeatDistance: p.NearRepeatDistance,
			},
			Assembler: caption.AssemblerConfig{
				WeakEndWords:     p.WeakEndWords,
				MinCharsForFinal: p.MinCharsForFinal,
				PunctGrace:       time.Duration(p.PunctGraceMs) * time.Millisecond,
				PauseFinal:       time.Duration(p.PauseFinalMs) * time.Millisecond,
			},
		},
		DefaultSTTLanguage:    cfg.Agent.STTLanguage,
		DefaultTargetLanguage: cfg.Agent.TargetLanguage,
	}
}

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return ":8080"
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
