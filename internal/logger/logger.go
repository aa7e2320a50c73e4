package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the daemon log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig controls the structured logger handler.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool // only for FormatText
	TimeStamps bool
	Source     bool
}

// FileConfig describes an optional rotated log file. Rotation parameters
// follow lumberjack semantics. An empty Path disables file output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config is the logging configuration for the daemon and CLI.
type Config struct {
	Slog SlogConfig
	File FileConfig
	// NoConsole disables stderr output (daemonized runs log to File only).
	NoConsole bool
}

// FileWriter returns a rotating writer for File.Path, or nil when no path is set.
func (c Config) FileWriter() io.WriteCloser {
	if strings.TrimSpace(c.File.Path) == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File.Path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// NewSlogger builds a logger writing to stderr and, if configured, to the
// rotated log file.
func (c Config) NewSlogger() *slog.Logger {
	var ws []io.Writer
	if !c.NoConsole {
		ws = append(ws, os.Stderr)
	}
	if fw := c.FileWriter(); fw != nil {
		ws = append(ws, fw)
	}
	switch len(ws) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		return c.NewSloggerTo(ws[0])
	default:
		return c.NewSloggerTo(io.MultiWriter(ws...))
	}
}

// NewSloggerTo builds a logger on an arbitrary writer. Color is ignored for
// JSON output.
func (c Config) NewSloggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(string(c.Slog.Level)),
		AddSource: c.Slog.Source,
	}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	var h slog.Handler
	switch {
	case c.Slog.Format == FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case c.Slog.Color:
		h = NewColorTextHandler(w, opts, c.Slog.TimeStamps)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
