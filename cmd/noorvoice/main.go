// Command noorvoice is the local voice-companion daemon. It exposes the HTTP
// control API, streams events over websocket, and drives the audio hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noor-app/noorvoice/internal/app"
	"github.com/noor-app/noorvoice/internal/config"
	"github.com/noor-app/noorvoice/internal/health"
	"github.com/noor-app/noorvoice/internal/httpapi"
	"github.com/noor-app/noorvoice/internal/observe"
	"github.com/noor-app/noorvoice/internal/transcript"
	"github.com/noor-app/noorvoice/pkg/audio/device"
	"github.com/noor-app/noorvoice/pkg/provider/live"
	livegemini "github.com/noor-app/noorvoice/pkg/provider/live/gemini"
	"github.com/noor-app/noorvoice/pkg/provider/tts"
	ttsgemini "github.com/noor-app/noorvoice/pkg/provider/tts/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	historyPath := flag.String("history", "", "optional JSONL file to persist transcripts to")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "noorvoice: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "noorvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("noorvoice starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "noorvoice",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audio host ────────────────────────────────────────────────────────────
	host, err := device.Open()
	if err != nil {
		slog.Error("failed to open audio host", "err", err)
		return 1
	}

	// ── Transcript history ────────────────────────────────────────────────────
	var logOpts []transcript.LogOption
	if *historyPath != "" {
		logOpts = append(logOpts, transcript.WithStore(transcript.NewFileStore(*historyPath)))
		slog.Info("transcript history enabled", "path", *historyPath)
	}
	transcripts := transcript.NewLog(logOpts...)

	// ── Application ───────────────────────────────────────────────────────────
	hub := httpapi.NewHub(logger)

	application, err := app.New(cfg, providers, host,
		app.WithEventSink(hub),
		app.WithLevelVar(level),
		app.WithTranscripts(transcripts),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	server, err := httpapi.New(httpapi.Config{
		ListenAddr: cfg.Server.ListenAddr,
		TLS:        cfg.Server.TLS,
		Service:    application,
		Hub:        hub,
		Health:     health.New(application.Checkers()...),
		Logger:     logger,
	})
	if err != nil {
		slog.Error("failed to initialise http server", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("daemon ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")
	watcher.Stop()

	exitCode := 0
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exitCode = 1
	}

	if err := application.Close(); err != nil {
		slog.Warn("application close error", "err", err)
	}
	if err := host.Close(); err != nil {
		slog.Warn("audio host close error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := shutdownObserve(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return exitCode
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// noorvoice into reg. Each factory receives a config.ProviderEntry and
// constructs the provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsgemini.Option
		if entry.Model != "" {
			opts = append(opts, ttsgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsgemini.WithBaseURL(entry.BaseURL))
		}
		return ttsgemini.New(entry.APIKey, opts...), nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Live.Name; name != "" {
		p, err := reg.CreateLive(cfg.Providers.Live)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("live provider not recognised — live sessions disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		} else {
			ps.Live = p
			slog.Info("provider created", "kind", "live", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("tts provider not recognised — speech playback disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        noorvoice — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  Guides          : %-19d ║\n", len(cfg.Guides))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
