package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/pausr/internal/auth"
	"github.com/loykin/pausr/internal/engine"
	"github.com/loykin/pausr/internal/metrics"
)

// Router exposes the engine over HTTP.
// Endpoints (relative to basePath):
//
//	POST   /events/focus|key|game-action|lifetime|suspend|resume|terminating
//	PUT    /running-apps
//	GET    /apps, /apps/:appid
//	POST   /apps/:appid/toggle|pause|resume|terminate
//	PUT    /apps/:appid/exclusion, DELETE /apps/:appid/exclusion
//	GET    /settings, PUT /settings
//	GET    /status
//	GET    /ws
//	GET    /metrics (when enabled)
//	POST   /auth/login (when auth is enabled; every other route then needs a token)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	eng      *engine.Engine
	basePath string
	limit    RateLimitConfig
	metrics  bool
	auth     *auth.Service
	log      *slog.Logger
	hub      *hub
}

// Options configures a Router.
type Options struct {
	BasePath  string
	RateLimit RateLimitConfig
	Metrics   bool
	// Auth enables token authentication; nil leaves the API open.
	Auth   *auth.Service
	Logger *slog.Logger
}

// NewRouter constructs a Router for eng.
func NewRouter(eng *engine.Engine, o Options) *Router {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "server")
	return &Router{
		eng:      eng,
		basePath: sanitizeBase(o.BasePath),
		limit:    o.RateLimit,
		metrics:  o.Metrics,
		auth:     o.Auth,
		log:      log,
		hub:      newHub(eng, log),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	base := g.Group(r.basePath)
	if r.auth != nil {
		base.POST("/auth/login", auth.LoginHandler(r.auth))
	}
	group := base.Group("", auth.GinAuth(r.auth))

	events := group.Group("/events")
	if r.limit.RequestsPerSecond > 0 {
		events.Use(RateLimit(r.limit))
	}
	events.POST("/focus", r.handleFocus)
	events.POST("/key", r.handleKey)
	events.POST("/game-action", r.handleGameAction)
	events.POST("/lifetime", r.handleLifetime)
	events.POST("/suspend", r.handleSuspend)
	events.POST("/resume", r.handleResume)
	events.POST("/terminating", r.handleTerminating)
	group.PUT("/running-apps", r.handleRunningApps)

	group.GET("/apps", r.handleApps)
	group.GET("/apps/:appid", r.handleApp)
	group.POST("/apps/:appid/toggle", r.handleToggle)
	group.POST("/apps/:appid/pause", r.handlePause)
	group.POST("/apps/:appid/resume", r.handleResumeApp)
	group.POST("/apps/:appid/terminate", r.handleTerminate)
	group.PUT("/apps/:appid/exclusion", r.handleExclude)
	group.DELETE("/apps/:appid/exclusion", r.handleInclude)

	group.GET("/settings", r.handleGetSettings)
	group.PUT("/settings", r.handlePutSettings)
	group.GET("/status", r.handleStatus)
	group.GET("/ws", r.hub.handle)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer listens on addr and serves h in the background, over TLS when
// tc is non-nil. Listen errors are returned; serve errors are logged.
func NewServer(addr string, h http.Handler, tc *tls.Config, log *slog.Logger) (*http.Server, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		TLSConfig:         tc,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if tc != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "addr", srv.Addr, "error", err)
		}
	}()
	return srv, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}
