// Package pausr is the embeddable entry point of the pause orchestrator.
// A Daemon wires the settings store, history sinks, process controller,
// app resolver, engine, host event sources and HTTP API from one Config.
package pausr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/auth"
	cfg "github.com/loykin/pausr/internal/config"
	"github.com/loykin/pausr/internal/detector"
	"github.com/loykin/pausr/internal/engine"
	"github.com/loykin/pausr/internal/history"
	hfactory "github.com/loykin/pausr/internal/history/factory"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/metrics"
	"github.com/loykin/pausr/internal/process"
	"github.com/loykin/pausr/internal/server"
	"github.com/loykin/pausr/internal/settings"
	"github.com/loykin/pausr/internal/source"
	"github.com/loykin/pausr/internal/store"
	sfactory "github.com/loykin/pausr/internal/store/factory"
	itls "github.com/loykin/pausr/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Re-export the types embedders need. These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Engine = engine.Engine

type Record = appstate.Record

type Settings = settings.Settings

type App = host.App

type (
	FocusChange       = host.FocusChange
	KeyEvent          = host.KeyEvent
	GameAction        = host.GameAction
	Lifetime          = host.Lifetime
	SuspendRequest    = host.SuspendRequest
	ResumeFromSuspend = host.ResumeFromSuspend
	RunningAppsUpdate = host.RunningAppsUpdate
)

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return cfg.Default() }

// Daemon owns every long-lived component of a running orchestrator.
type Daemon struct {
	cfg  *Config
	log  *slog.Logger
	st   store.Store
	set  *settings.Manager
	apps *host.Registry
	rec  *history.Recorder
	eng  *engine.Engine
	auth *auth.Service
	srcs []source.Source
}

// Option customizes NewDaemon.
type Option func(*options)

type options struct {
	ctrl     process.Controller
	resolver detector.Resolver
	noSrc    bool
}

// WithController replaces the local process controller.
func WithController(c process.Controller) Option { return func(o *options) { o.ctrl = c } }

// WithResolver replaces the configured app id <-> pid resolver chain.
func WithResolver(r detector.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithoutBuiltinSources disables the configured x11/logind/gamepad sources.
// Events must then be fed through the HTTP API or Engine().Submit.
func WithoutBuiltinSources() Option { return func(o *options) { o.noSrc = true } }

// NewDaemon opens the settings store, runs the legacy migration and builds
// the engine. Nothing runs until Run is called.
func NewDaemon(ctx context.Context, c *Config, log *slog.Logger, opts ...Option) (*Daemon, error) {
	if c == nil {
		c = cfg.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	st, err := sfactory.Open(ctx, c.Resolve(c.Store.DSN))
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	set := settings.New(st, settings.WithLogger(log), settings.WithLegacyFile(c.Resolve(c.Store.LegacyFile)))
	if err := set.Init(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var authSvc *auth.Service
	if a := c.Server.Auth; a.Enabled {
		authSvc, err = auth.New(auth.Config{PasswordHash: a.PasswordHash, JWTSecret: a.JWTSecret, TokenTTL: a.TokenTTL})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("auth: %w", err)
		}
	}

	var rec *history.Recorder
	if c.History.Enabled && len(c.History.Sinks) > 0 {
		sinks, err := hfactory.NewSinks(resolveAll(c, c.History.Sinks))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("history sinks: %w", err)
		}
		rec = history.NewRecorder(log, sinks...)
	}

	ctrl := o.ctrl
	if ctrl == nil {
		ctrl = process.NewLocal(log)
	}
	res := o.resolver
	if res == nil {
		res = detector.New(c.Detector.ReaperPattern, c.Detector.PIDDir, c.Detector.Command)
	}
	apps := host.NewRegistry()

	eng, err := engine.New(engine.Config{
		OverlayAppID:         c.Engine.OverlayAppID,
		Throttle:             c.Engine.Throttle,
		KeyWindow:            c.Engine.KeyWindow,
		GraceDelay:           c.Engine.GraceDelay,
		ReconcileInterval:    c.Engine.ReconcileInterval,
		LaunchCompleteStatus: c.Engine.LaunchCompleteStatus,
	}, engine.Deps{
		Controller: ctrl,
		Resolver:   res,
		Apps:       apps,
		Settings:   set,
		History:    rec,
		Logger:     log,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	log.Info("engine ready", "resolver", res.Describe(), "store", c.Store.DSN, "history", rec != nil)

	d := &Daemon{cfg: c, log: log, st: st, set: set, apps: apps, rec: rec, eng: eng, auth: authSvc}
	if !o.noSrc {
		d.srcs = builtinSources(c, eng, log)
	}
	return d, nil
}

func resolveAll(c *Config, dsns []string) []string {
	out := make([]string, len(dsns))
	for i, s := range dsns {
		out[i] = c.Resolve(s)
	}
	return out
}

func builtinSources(c *Config, eng *engine.Engine, log *slog.Logger) []source.Source {
	var out []source.Source
	if c.Sources.X11.Enabled {
		out = append(out, source.NewX11(eng, c.Sources.X11.Interval, log))
	}
	if c.Sources.Logind.Enabled {
		out = append(out, source.NewLogind(eng, log))
	}
	if c.Sources.Gamepad.Enabled {
		g := c.Sources.Gamepad
		out = append(out, source.NewGamepad(eng, g.Device, g.GuideButton, g.Interval, log))
	}
	return out
}

// Engine exposes the orchestrator for direct event submission.
func (d *Daemon) Engine() *engine.Engine { return d.eng }

// Apps is the running-apps registry fed by RunningAppsUpdate events.
func (d *Daemon) Apps() *host.Registry { return d.apps }

// Handler returns the HTTP API rooted at the configured base path.
func (d *Daemon) Handler() http.Handler {
	return server.NewRouter(d.eng, server.Options{
		BasePath: d.cfg.Server.BasePath,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: d.cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             d.cfg.Server.RateLimit.Burst,
		},
		Metrics: d.cfg.Metrics.Enabled && d.cfg.Metrics.Listen == "",
		Auth:    d.auth,
		Logger:  d.log,
	}).Handler()
}

// Run starts the engine, the history recorder and the host event sources and
// blocks until ctx is cancelled. The settings store is closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	defer func() {
		if err := d.st.Close(); err != nil {
			d.log.Warn("close settings store", "error", err)
		}
	}()
	if d.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if d.rec != nil {
		g.Go(func() error {
			d.rec.Run(gctx)
			return nil
		})
	}
	g.Go(func() error { return d.eng.Run(gctx) })
	if len(d.srcs) > 0 {
		g.Go(func() error {
			source.RunAll(gctx, d.log, d.srcs...)
			return nil
		})
	}
	return g.Wait()
}

// Serve runs the daemon and its HTTP API (and the separate metrics listener,
// when configured) until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	tc, err := itls.Setup(d.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	srv, err := server.NewServer(d.cfg.Server.Listen, d.Handler(), tc, d.log)
	if err != nil {
		return err
	}
	servers := []*http.Server{srv}
	if d.cfg.Metrics.Enabled && d.cfg.Metrics.Listen != "" {
		ms, err := server.NewServer(d.cfg.Metrics.Listen, metrics.Handler(), nil, d.log)
		if err != nil {
			_ = srv.Close()
			return err
		}
		servers = append(servers, ms)
	}

	runErr := d.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			d.log.Warn("http shutdown", "addr", s.Addr, "error", err)
		}
	}
	return runErr
}
