package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/pausr/internal/logger"
	"github.com/spf13/viper"
)

// Config represents the top-level TOML structure.
//
//	[log]      structured logging and optional rotated file
//	[server]   HTTP API (events in, state out)
//	[store]    settings persistence
//	[history]  pause/resume audit sinks
//	[metrics]  prometheus endpoint
//	[engine]   timing windows and sentinels of the orchestrator
//	[detector] app id <-> pid resolution
//	[sources]  built-in host event sources
type Config struct {
	Log      LogConfig      `toml:"log" mapstructure:"log"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Engine   EngineConfig   `toml:"engine" mapstructure:"engine"`
	Detector DetectorConfig `toml:"detector" mapstructure:"detector"`
	Sources  SourcesConfig  `toml:"sources" mapstructure:"sources"`

	// path of the file this config was read from; empty for defaults
	path string
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	TimeStamps bool   `toml:"timestamps" mapstructure:"timestamps"`
	Source     bool   `toml:"source" mapstructure:"source"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Listen    string          `toml:"listen" mapstructure:"listen"`
	BasePath  string          `toml:"base_path" mapstructure:"base_path"`
	PidFile   string          `toml:"pidfile" mapstructure:"pidfile"`
	LogFile   string          `toml:"logfile" mapstructure:"logfile"`
	TLS       TLSConfig       `toml:"tls" mapstructure:"tls"`
	RateLimit RateLimitConfig `toml:"rate_limit" mapstructure:"rate_limit"`
	Auth      AuthConfig      `toml:"auth" mapstructure:"auth"`
}

// AuthConfig puts the API behind an operator password (bcrypt hash).
type AuthConfig struct {
	Enabled      bool          `toml:"enabled" mapstructure:"enabled"`
	PasswordHash string        `toml:"password_hash" mapstructure:"password_hash"`
	JWTSecret    string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `toml:"token_ttl" mapstructure:"token_ttl"`
}

type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
}

// RateLimitConfig bounds host event ingestion per client IP.
type RateLimitConfig struct {
	RequestsPerSecond int `toml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int `toml:"burst" mapstructure:"burst"`
}

type StoreConfig struct {
	// DSN selects the settings backend: sqlite path, sqlite://, postgres://
	DSN string `toml:"dsn" mapstructure:"dsn"`
	// LegacyFile is a JSON settings blob from older releases, migrated once.
	LegacyFile string `toml:"legacy_file" mapstructure:"legacy_file"`
}

type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks   []string `toml:"sinks" mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"` // empty: served on the API router
}

type EngineConfig struct {
	OverlayAppID         uint32        `toml:"overlay_app_id" mapstructure:"overlay_app_id"`
	Throttle             time.Duration `toml:"throttle" mapstructure:"throttle"`
	KeyWindow            time.Duration `toml:"key_window" mapstructure:"key_window"`
	GraceDelay           time.Duration `toml:"grace_delay" mapstructure:"grace_delay"`
	ReconcileInterval    time.Duration `toml:"reconcile_interval" mapstructure:"reconcile_interval"`
	LaunchCompleteStatus string        `toml:"launch_complete_status" mapstructure:"launch_complete_status"`
}

type DetectorConfig struct {
	ReaperPattern string `toml:"reaper_pattern" mapstructure:"reaper_pattern"`
	PIDDir        string `toml:"pid_dir" mapstructure:"pid_dir"`
	Command       string `toml:"command" mapstructure:"command"`
}

type SourcesConfig struct {
	X11     X11SourceConfig     `toml:"x11" mapstructure:"x11"`
	Logind  LogindSourceConfig  `toml:"logind" mapstructure:"logind"`
	Gamepad GamepadSourceConfig `toml:"gamepad" mapstructure:"gamepad"`
}

type X11SourceConfig struct {
	Enabled  bool          `toml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

type LogindSourceConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

type GamepadSourceConfig struct {
	Enabled     bool          `toml:"enabled" mapstructure:"enabled"`
	Device      int           `toml:"device" mapstructure:"device"` // -1 probes 0..3
	GuideButton int           `toml:"guide_button" mapstructure:"guide_button"`
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.timestamps", true)

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.rate_limit.requests_per_second", 50)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("server.tls.min_version", "1.2")
	v.SetDefault("server.auth.token_ttl", "24h")

	v.SetDefault("store.dsn", "pausr.db")

	v.SetDefault("engine.overlay_app_id", 769)
	v.SetDefault("engine.throttle", "500ms")
	v.SetDefault("engine.key_window", "1s")
	v.SetDefault("engine.grace_delay", "500ms")
	v.SetDefault("engine.launch_complete_status", "Completed")

	v.SetDefault("detector.reaper_pattern", `/reaper\s.*\bAppId=%d\b`)

	v.SetDefault("sources.x11.interval", "250ms")
	v.SetDefault("sources.gamepad.device", -1)
	v.SetDefault("sources.gamepad.guide_button", 8)
	v.SetDefault("sources.gamepad.interval", "16ms")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("PAUSR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Default returns the built-in configuration (plus PAUSR_* env overrides).
func Default() *Config {
	c, _ := decode(newViper(), "")
	return c
}

// Load reads a TOML file on top of the defaults. An empty path yields Default().
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	c, err := decode(v, path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decode(v *viper.Viper, path string) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.path = path
	return &c, nil
}

// Validate rejects values that would make the orchestrator misbehave.
func (c *Config) Validate() error {
	if c.Engine.Throttle <= 0 {
		return fmt.Errorf("engine.throttle must be positive, got %s", c.Engine.Throttle)
	}
	if c.Engine.KeyWindow <= 0 {
		return fmt.Errorf("engine.key_window must be positive, got %s", c.Engine.KeyWindow)
	}
	if c.Engine.GraceDelay < 0 {
		return fmt.Errorf("engine.grace_delay must not be negative")
	}
	if c.Engine.LaunchCompleteStatus == "" {
		return fmt.Errorf("engine.launch_complete_status must be set")
	}
	if c.Detector.ReaperPattern != "" && !strings.Contains(c.Detector.ReaperPattern, "%d") {
		return fmt.Errorf("detector.reaper_pattern must contain %%d for the app id")
	}
	if c.Server.TLS.Enabled && c.Server.TLS.Dir == "" && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires cert_file and key_file, or dir")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.PasswordHash == "" {
		return fmt.Errorf("server.auth requires password_hash (see: pausr hash-password)")
	}
	return nil
}

// Resolve makes a relative path absolute against the config file directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" || strings.Contains(p, "://") || p == ":memory:" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// Logger converts the [log] section to a logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(l.Level),
			Format:     logger.Format(l.Format),
			Color:      l.Color,
			TimeStamps: l.TimeStamps,
			Source:     l.Source,
		},
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}
