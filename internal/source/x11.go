package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/pausr/internal/host"
)

// ActiveWindow is the focused window as reported by the window system.
type ActiveWindow struct {
	ID  uint64
	PID int
}

// WindowQuery returns the currently focused window.
type WindowQuery func(ctx context.Context) (ActiveWindow, error)

// X11 polls the active window and submits a FocusChange when it changes.
// The app id is left at 0; the engine resolves it from the pid.
type X11 struct {
	sink     Sink
	interval time.Duration
	query    WindowQuery
	custom   bool
	log      *slog.Logger

	last ActiveWindow
}

func NewX11(sink Sink, interval time.Duration, log *slog.Logger) *X11 {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &X11{sink: sink, interval: interval, query: xdotoolActiveWindow, log: log.With("source", "x11")}
}

// WithQuery replaces the xdotool query.
func (x *X11) WithQuery(q WindowQuery) *X11 {
	x.query = q
	x.custom = true
	return x
}

func (x *X11) Name() string { return "x11" }

func (x *X11) Run(ctx context.Context) error {
	if !x.custom {
		if _, err := exec.LookPath("xdotool"); err != nil {
			return fmt.Errorf("%w: xdotool not found", ErrUnsupported)
		}
	}
	t := time.NewTicker(x.interval)
	defer t.Stop()
	for {
		x.poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// poll submits a focus change when the active window moved.
func (x *X11) poll(ctx context.Context) {
	w, err := x.query(ctx)
	if err != nil {
		x.log.Debug("active window query failed", "error", err)
		return
	}
	if w == x.last {
		return
	}
	x.last = w
	ev := host.FocusChange{PID: w.PID, WindowID: w.ID, ExeName: exeName(ctx, w.PID)}
	if err := x.sink.Submit(ev); err != nil {
		x.log.Warn("focus change rejected", "pid", w.PID, "error", err)
	}
}

func exeName(ctx context.Context, pid int) string {
	if pid <= 0 {
		return ""
	}
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ""
	}
	name, _ := p.NameWithContext(ctx)
	return name
}

func xdotoolActiveWindow(ctx context.Context) (ActiveWindow, error) {
	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow").Output()
	if err != nil {
		return ActiveWindow{}, err
	}
	id, err := strconv.ParseUint(string(bytes.TrimSpace(out)), 10, 64)
	if err != nil {
		return ActiveWindow{}, fmt.Errorf("parse window id: %w", err)
	}
	w := ActiveWindow{ID: id}
	out, err = exec.CommandContext(ctx, "xdotool", "getwindowpid", strconv.FormatUint(id, 10)).Output()
	if err != nil {
		// windows without _NET_WM_PID are still a focus change
		return w, nil
	}
	pid, err := strconv.Atoi(string(bytes.TrimSpace(out)))
	if err == nil {
		w.PID = pid
	}
	return w, nil
}
