// Command voxdesk is the main entry point for the voxdesk assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/app"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/resilience"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/null"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
	"github.com/MrWong99/voxdesk/pkg/provider/live/gemini"
	"github.com/MrWong99/voxdesk/pkg/provider/live/genai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxdesk: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxdesk: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voxdesk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if c, ok := providers.Platform.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("audio platform close", "err", err)
			}
		}()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(gctx)
	})
	g.Go(func() error {
		return watcher.Run(gctx, func(old, next *config.Config) {
			reload(gctx, application, reg, logLevel, old, next)
		})
	})
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// reload applies a changed config file. Assistant settings reach the next
// session; a changed transport is rebuilt first and the reload is skipped if
// that fails.
func reload(ctx context.Context, application *app.App, reg *config.Registry, level *slog.LevelVar, old, next *config.Config) {
	d := config.Diff(old, next)
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	var transport live.Transport
	if d.Assistant.TransportChanged {
		t, err := app.BuildTransport(ctx, reg, next.Assistant, openObserver())
		if err != nil {
			slog.Error("config reload: keep previous transport", "transport", next.Assistant.Transport, "err", err)
			return
		}
		transport = t
	}
	application.Reload(next, transport)
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in transport and audio factories
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Transports ────────────────────────────────────────────────────────────

	reg.RegisterTransport("gemini-live", func(_ context.Context, ac config.AssistantConfig) (live.Transport, error) {
		var opts []gemini.Option
		if ac.Model != "" {
			opts = append(opts, gemini.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(ac.BaseURL))
		}
		return gemini.New(ac.APIKey, opts...), nil
	})

	reg.RegisterTransport("genai-live", func(ctx context.Context, ac config.AssistantConfig) (live.Transport, error) {
		var opts []genai.Option
		if ac.Model != "" {
			opts = append(opts, genai.WithModel(ac.Model))
		}
		if ac.BaseURL != "" {
			opts = append(opts, genai.WithBaseURL(ac.BaseURL))
		}
		return genai.New(ctx, ac.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterPlatform("null", func(config.AudioConfig) (audio.Platform, error) {
		return null.Platform{}, nil
	})
	registerDevicePlatforms(reg)

	for _, name := range reg.Transports() {
		slog.Debug("registered transport", "name", name)
	}
}

// openObserver counts transport open attempts on the global instruments.
func openObserver() resilience.TransportOption {
	return resilience.WithOpenObserver(observe.DefaultMetrics().RecordTransportOpen)
}

// buildProviders instantiates the transport and audio platform named in cfg.
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	transport, err := app.BuildTransport(ctx, reg, cfg.Assistant, openObserver())
	if err != nil {
		return nil, err
	}
	slog.Info("provider created",
		"kind", "transport",
		"name", cfg.Assistant.Transport,
		"fallbacks", cfg.Assistant.Fallbacks,
	)

	platform, err := reg.CreatePlatform(cfg.Audio)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		return nil, fmt.Errorf("audio backend %q is not compiled into this binary: %w", cfg.Audio.Backend, err)
	}
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Backend)

	return &app.Providers{Transport: transport, Platform: platform}, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxdesk · startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Transport", cfg.Assistant.Transport+" / "+cfg.Assistant.Model)
	printRow("Voice", cfg.Assistant.Voice)
	printRow("Audio", cfg.Audio.Backend)
	if cfg.Store.PostgresDSN != "" {
		printRow("Records", "postgres")
	} else {
		printRow("Records", "(in memory)")
	}
	if cfg.History.RedisAddr != "" {
		printRow("History", "redis "+cfg.History.RedisAddr)
	} else {
		printRow("History", "(disabled)")
	}
	if len(cfg.Assistant.Surfaces) > 0 {
		printRow("Surfaces", fmt.Sprintf("%d configured", len(cfg.Assistant.Surfaces)))
	} else {
		printRow("Surfaces", "(any)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
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
