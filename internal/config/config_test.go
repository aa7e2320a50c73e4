package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "pausr.toml")
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return file
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Engine.OverlayAppID != 769 {
		t.Fatalf("overlay id: %d", c.Engine.OverlayAppID)
	}
	if c.Engine.Throttle != 500*time.Millisecond || c.Engine.KeyWindow != time.Second || c.Engine.GraceDelay != 500*time.Millisecond {
		t.Fatalf("unexpected timing defaults: %+v", c.Engine)
	}
	if c.Engine.LaunchCompleteStatus != "Completed" {
		t.Fatalf("launch status: %q", c.Engine.LaunchCompleteStatus)
	}
	if c.Server.BasePath != "/api" || c.Store.DSN == "" {
		t.Fatalf("unexpected server/store defaults: %+v %+v", c.Server, c.Store)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_Full(t *testing.T) {
	file := writeTOML(t, `
[log]
level = "debug"
format = "json"
file = "logs/pausr.log"

[server]
listen = "0.0.0.0:9000"
base_path = "/v1"
  [server.rate_limit]
  requests_per_second = 5
  burst = 10

[store]
dsn = "state.db"
legacy_file = "/home/deck/settings.json"

[history]
enabled = true
sinks = ["sqlite://history.db", "clickhouse://localhost:9000?table=pause_history"]

[engine]
throttle = "250ms"
key_window = "2s"
grace_delay = "1s"
reconcile_interval = "30s"

[detector]
pid_dir = "/run/pausr/apps"

[sources.gamepad]
enabled = true
guide_button = 10
`)
	c, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Log.Level != "debug" || c.Log.Format != "json" {
		t.Fatalf("log: %+v", c.Log)
	}
	if c.Server.Listen != "0.0.0.0:9000" || c.Server.BasePath != "/v1" || c.Server.RateLimit.Burst != 10 {
		t.Fatalf("server: %+v", c.Server)
	}
	if !c.History.Enabled || len(c.History.Sinks) != 2 {
		t.Fatalf("history: %+v", c.History)
	}
	if c.Engine.Throttle != 250*time.Millisecond || c.Engine.KeyWindow != 2*time.Second || c.Engine.ReconcileInterval != 30*time.Second {
		t.Fatalf("engine: %+v", c.Engine)
	}
	// untouched keys keep defaults
	if c.Engine.OverlayAppID != 769 || c.Detector.ReaperPattern == "" {
		t.Fatalf("defaults lost: %+v %+v", c.Engine, c.Detector)
	}
	if !c.Sources.Gamepad.Enabled || c.Sources.Gamepad.GuideButton != 10 || c.Sources.Gamepad.Device != -1 {
		t.Fatalf("gamepad: %+v", c.Sources.Gamepad)
	}
	if got := c.Resolve(c.Store.DSN); got != filepath.Join(filepath.Dir(file), "state.db") {
		t.Fatalf("resolve relative: %s", got)
	}
	if got := c.Resolve(c.Store.LegacyFile); got != "/home/deck/settings.json" {
		t.Fatalf("resolve absolute: %s", got)
	}
	lc := c.Log.Logger()
	if lc.File.Path != "logs/pausr.log" || string(lc.Slog.Format) != "json" {
		t.Fatalf("logger conversion: %+v", lc)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	cases := map[string]string{
		"throttle": `
[engine]
throttle = "0s"
`,
		"reaper_pattern": `
[detector]
reaper_pattern = "reaper AppId="
`,
		"tls": `
[server.tls]
enabled = true
`,
		"password_hash": `
[server.auth]
enabled = true
`,
	}
	for want, data := range cases {
		_, err := Load(writeTOML(t, data))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected validation error, got %v", want, err)
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PAUSR_SERVER_LISTEN", "127.0.0.1:7000")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != "127.0.0.1:7000" {
		t.Fatalf("env override not applied: %s", c.Server.Listen)
	}
}
