// Package app wires the voxdesk subsystems into a running server.
//
// New builds the record store, history sinks, UI hub and session manager
// from the config; Run serves HTTP until its context ends; Shutdown closes
// the live session and releases every connection in order.
//
// For testing, inject doubles with functional options (WithRecordStore,
// WithHistorySink). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/assistant"
	"github.com/MrWong99/voxdesk/internal/backoffice"
	"github.com/MrWong99/voxdesk/internal/backoffice/postgres"
	"github.com/MrWong99/voxdesk/internal/backoffice/redis"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/transcript"
	"github.com/MrWong99/voxdesk/internal/ui"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/live"
)

// Providers holds the externally constructed collaborators. Populated by
// main via the config registry.
type Providers struct {
	Transport live.Transport
	Platform  audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	records  backoffice.Store
	history  transcript.MultiSink
	loader   *backoffice.Loader
	actions  *backoffice.Actions
	hub      *ui.Hub
	manager  *assistant.Manager
	metrics  *observe.Metrics
	checkers []health.Checker

	mu sync.Mutex
	ln net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecordStore injects a record store instead of creating one from config.
func WithRecordStore(s backoffice.Store) Option {
	return func(a *App) { a.records = s }
}

// WithHistorySink adds a history sink next to the ones created from config.
func WithHistorySink(s transcript.HistorySink) Option {
	return func(a *App) { a.history = append(a.history, s) }
}

// WithMetrics replaces the global metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates the App. Sessions are not started until a UI surface asks.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initRecords(ctx); err != nil {
		_ = a.Shutdown(ctx)
		return nil, err
	}
	a.initHistory(ctx)

	a.hub = ui.NewHub(ui.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	a.loader = backoffice.NewLoader(a.records)
	a.actions = backoffice.NewActions(a.records, a.hub, backoffice.WithChangeHook(a.hub.RecordChanged))
	a.manager = assistant.NewManager(ctx, a.sessionConfig(cfg.Assistant, providers.Transport))

	slog.Info("app initialised",
		"transport", cfg.Assistant.Transport,
		"audio", cfg.Audio.Backend,
		"history_sinks", len(a.history),
	)
	return a, nil
}

func (a *App) initRecords(ctx context.Context) error {
	if a.records != nil {
		return nil
	}
	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		slog.Warn("store.postgres_dsn is empty; records live in memory and are lost on restart")
		a.records = backoffice.NewMemStore()
		return nil
	}
	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: init record store: %w", err)
	}
	a.records = pg
	a.history = append(a.history, pg)
	a.checkers = append(a.checkers, health.PingCheck("postgres", pg))
	a.closers = append(a.closers, func() error { pg.Close(); return nil })
	return nil
}

func (a *App) initHistory(ctx context.Context) {
	h := a.cfg.History
	if h.RedisAddr == "" {
		return
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     h.RedisAddr,
		Password: h.RedisPassword,
		DB:       h.RedisDB,
	})
	sink := redis.NewStreamSink(client, redis.WithStream(h.Stream), redis.WithMaxLen(h.MaxLen))
	if err := sink.Ping(ctx); err != nil {
		slog.Warn("redis unreachable at startup; history stream writes will fail until it recovers",
			"addr", h.RedisAddr, "err", err)
	}
	a.history = append(a.history, sink)
	a.checkers = append(a.checkers, health.PingCheck("redis", sink))
	a.closers = append(a.closers, client.Close)
}

// sessionConfig maps the assistant section onto a session config.
func (a *App) sessionConfig(ac config.AssistantConfig, transport live.Transport) assistant.Config {
	return assistant.Config{
		Transport:    transport,
		Platform:     a.providers.Platform,
		Context:      a.loader,
		Tools:        a.actions,
		History:      a.history,
		Status:       a.hub,
		Metrics:      a.metrics,
		Model:        ac.Model,
		Voice:        ac.Voice,
		Instructions: ac.Instructions,
		FrameSize:    ac.FrameSize,
		QuietDelay:   ac.QuietDelay,
		OpenTimeout:  ac.OpenTimeout,
		ToolTimeout:  ac.ToolTimeout,

		HistoryTimeout: ac.HistoryTimeout,
	}
}

// Manager returns the session manager.
func (a *App) Manager() *assistant.Manager { return a.manager }

// Records returns the record store.
func (a *App) Records() backoffice.Store { return a.records }

// Reload applies a changed config. Assistant settings take effect for the
// next session; transport is the transport built from the new settings, or
// nil to keep the current one.
func (a *App) Reload(next *config.Config, transport live.Transport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := config.Diff(a.cfg, next)
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
	if !d.Assistant.Any() {
		a.cfg = next
		return
	}
	if transport == nil {
		transport = a.manager.Config().Transport
	}
	a.manager.SetConfig(a.sessionConfig(next.Assistant, transport))
	a.cfg = next
	slog.Info("assistant settings reloaded; they apply to the next session",
		"transport_changed", d.Assistant.TransportChanged,
		"voice_changed", d.Assistant.VoiceChanged,
		"model_changed", d.Assistant.ModelChanged,
	)
}

// Handler returns the HTTP routes: assistant API, UI websocket, health and
// metrics, all behind the request-metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	ui.NewAPI(a.manager, a.hub, a.config().Assistant.Surfaces).Register(mux)
	health.New(a.checkers, health.WithDetails(a.healthDetails)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// config returns the current config. Reload replaces it.
func (a *App) config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) healthDetails() map[string]string {
	info, ok := a.manager.Active()
	if !ok {
		return map[string]string{"assistant": string(assistant.StatusIdle)}
	}
	return map[string]string{
		"assistant":  string(info.Status),
		"surface":    info.Surface,
		"session_id": info.SessionID,
	}
}

// Addr returns the address Run is listening on, or "" before it started.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}

// Run serves HTTP on cfg.Server.ListenAddr and blocks until ctx is done.
// It returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	cfg := a.config()
	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.ln = ln
	a.mu.Unlock()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("http server listening", "addr", ln.Addr().String())
	return eg.Wait()
}

// Shutdown closes the live session, waits for its teardown, then runs the
// closers in order. It respects the context deadline: if ctx expires,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.manager != nil {
			if err := a.manager.Shutdown(ctx); err != nil {
				slog.Warn("session teardown incomplete", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
