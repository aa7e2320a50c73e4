// Package client is a Go client for the pausr HTTP API.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to a pausr daemon.
type Client struct {
	r      *resty.Client
	logger *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Retries  int
	Logger   *slog.Logger
	CACert   string // PEM file trusted in addition to the system pool
	Insecure bool   // skip TLS verification
	Token    string // bearer token from Login, for daemons with auth enabled
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8787/api",
		Timeout: 10 * time.Second,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status of an *APIError, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// New creates a client. TLS setup errors are returned.
func New(cfg Config) (*Client, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Retries > 0 {
		// only transport errors and 5xx are retried; 4xx are final
		r.SetRetryCount(cfg.Retries).
			SetRetryWaitTime(100 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || (resp != nil && resp.StatusCode() >= 500)
			})
	}
	if cfg.Insecure || cfg.CACert != "" {
		tc, err := clientTLS(cfg)
		if err != nil {
			return nil, err
		}
		r.SetTLSClientConfig(tc)
	}
	if cfg.Token != "" {
		r.SetAuthToken(cfg.Token)
	}
	return &Client{r: r, logger: cfg.Logger}, nil
}

func clientTLS(cfg Config) (*tls.Config, error) {
	// #nosec G402 insecure is an explicit opt-in for self-signed daemons
	tc := &tls.Config{InsecureSkipVerify: cfg.Insecure}
	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("parse CA certificate: no certificates found")
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

// do sends a request and decodes a 2xx body into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var eresp ErrorResponse
	req := c.r.R().SetContext(ctx).SetError(&eresp)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: eresp.Error}
	}
	return nil
}

func appPath(appID uint32, suffix string) string {
	return "/apps/" + strconv.FormatUint(uint64(appID), 10) + suffix
}

// Login exchanges the operator password for a bearer token and uses it for
// subsequent requests.
func (c *Client) Login(ctx context.Context, password string) (Token, error) {
	var t Token
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"password": password}, &t); err != nil {
		return Token{}, err
	}
	c.r.SetAuthToken(t.Value)
	return t, nil
}

// IsReachable reports whether the daemon answers GET /status.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	return err == nil
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Apps(ctx context.Context) ([]App, error) {
	var apps []App
	err := c.do(ctx, http.MethodGet, "/apps", nil, &apps)
	return apps, err
}

func (c *Client) App(ctx context.Context, appID uint32) (App, error) {
	var a App
	err := c.do(ctx, http.MethodGet, appPath(appID, ""), nil, &a)
	return a, err
}

func (c *Client) Toggle(ctx context.Context, appID uint32) (App, error) {
	var a App
	err := c.do(ctx, http.MethodPost, appPath(appID, "/toggle"), nil, &a)
	return a, err
}

func (c *Client) Pause(ctx context.Context, appID uint32) (App, error) {
	var a App
	err := c.do(ctx, http.MethodPost, appPath(appID, "/pause"), nil, &a)
	return a, err
}

func (c *Client) Resume(ctx context.Context, appID uint32) (App, error) {
	var a App
	err := c.do(ctx, http.MethodPost, appPath(appID, "/resume"), nil, &a)
	return a, err
}

// Terminate resumes the app and signals its process tree.
func (c *Client) Terminate(ctx context.Context, appID uint32, force bool) error {
	p := appPath(appID, "/terminate")
	if force {
		p += "?force=1"
	}
	return c.do(ctx, http.MethodPost, p, nil, &okResponse{})
}

func (c *Client) Exclude(ctx context.Context, appID uint32) error {
	return c.do(ctx, http.MethodPut, appPath(appID, "/exclusion"), nil, &okResponse{})
}

func (c *Client) Include(ctx context.Context, appID uint32) error {
	return c.do(ctx, http.MethodDelete, appPath(appID, "/exclusion"), nil, &okResponse{})
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// UpdateSettings applies p and returns the resulting settings.
func (c *Client) UpdateSettings(ctx context.Context, p SettingsPatch) (Settings, error) {
	var s Settings
	err := c.do(ctx, http.MethodPut, "/settings", p, &s)
	return s, err
}

func (c *Client) SendFocus(ctx context.Context, ev FocusEvent) error {
	return c.do(ctx, http.MethodPost, "/events/focus", ev, &okResponse{})
}

func (c *Client) SendKey(ctx context.Context, key int) error {
	return c.do(ctx, http.MethodPost, "/events/key", map[string]int{"key": key}, &okResponse{})
}

// Suspend asks the daemon to pause every app before sleep. It returns once
// the sweep finished.
func (c *Client) Suspend(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/events/suspend", nil, &okResponse{})
}

func (c *Client) Wake(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/events/resume", nil, &okResponse{})
}

// SetRunningApps replaces the daemon's running list.
func (c *Client) SetRunningApps(ctx context.Context, apps []RunningApp) error {
	if apps == nil {
		apps = []RunningApp{}
	}
	return c.do(ctx, http.MethodPut, "/running-apps", map[string][]RunningApp{"apps": apps}, &okResponse{})
}
