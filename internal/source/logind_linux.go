//go:build linux

package source

import (
	"context"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/loykin/pausr/internal/host"
)

const (
	login1Dest      = "org.freedesktop.login1"
	login1Path      = dbus.ObjectPath("/org/freedesktop/login1")
	login1Manager   = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"
)

// Inhibitor takes and releases a logind delay lock on sleep.
type Inhibitor interface {
	Acquire() error
	Release()
}

// Logind watches PrepareForSleep on the system bus. Before sleep it holds a
// delay inhibitor until the engine has paused every app; after wake it
// reports the resume and takes a new lock.
type Logind struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration
}

func NewLogind(sink Sink, log *slog.Logger) *Logind {
	if log == nil {
		log = slog.Default()
	}
	return &Logind{sink: sink, log: log.With("source", "logind"), timeout: 5 * time.Second}
}

func (l *Logind) Name() string { return "logind" }

func (l *Logind) Run(ctx context.Context) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("%w: system bus: %v", ErrUnsupported, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember(prepareForSleep),
	); err != nil {
		return fmt.Errorf("subscribe %s: %w", prepareForSleep, err)
	}
	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	inh := &busInhibitor{obj: conn.Object(login1Dest, login1Path), fd: -1}
	if err := inh.Acquire(); err != nil {
		l.log.Warn("sleep inhibitor unavailable; apps may not be paused before sleep", "error", err)
	}
	defer inh.Release()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			if sig.Name != login1Manager+"."+prepareForSleep || len(sig.Body) == 0 {
				continue
			}
			start, _ := sig.Body[0].(bool)
			l.handleSleep(ctx, start, inh)
		}
	}
}

// handleSleep forwards a sleep transition to the engine.
func (l *Logind) handleSleep(ctx context.Context, start bool, inh Inhibitor) {
	if !start {
		if err := l.sink.Submit(host.ResumeFromSuspend{}); err != nil {
			l.log.Warn("resume event rejected", "error", err)
		}
		if err := inh.Acquire(); err != nil {
			l.log.Warn("re-acquire sleep inhibitor failed", "error", err)
		}
		return
	}
	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sink.SubmitWait(wctx, host.SuspendRequest{}); err != nil {
		l.log.Warn("suspend sweep did not finish", "error", err)
	}
	inh.Release()
}

type busInhibitor struct {
	obj dbus.BusObject
	fd  int
}

func (b *busInhibitor) Acquire() error {
	if b.fd >= 0 {
		return nil
	}
	var fd dbus.UnixFD
	err := b.obj.Call(login1Manager+".Inhibit", 0,
		"sleep", "pausr", "Pausing apps before sleep", "delay").Store(&fd)
	if err != nil {
		return err
	}
	b.fd = int(fd)
	return nil
}

func (b *busInhibitor) Release() {
	if b.fd < 0 {
		return
	}
	_ = syscall.Close(b.fd)
	b.fd = -1
}
