// Package process implements the process-control primitives: pause, resume,
// terminate and kill a process tree, and query whether it is paused.
//
// An application's controlling pid (the launcher "reaper") is never signalled
// itself; every signal goes to all of its descendants. A pid without
// descendants is reported as a failed operation (false, nil).
package process

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
)

// ErrUnsupported is returned on platforms without job-control signals.
var ErrUnsupported = errors.New("process control not supported on this platform")

// Controller is the process-control service consumed by the orchestrator.
// Results follow the primitive contract: false means nothing changed.
type Controller interface {
	IsPaused(ctx context.Context, pid int) (bool, error)
	Pause(ctx context.Context, pid int) (bool, error)
	Resume(ctx context.Context, pid int) (bool, error)
	Terminate(ctx context.Context, pid int) (bool, error)
	Kill(ctx context.Context, pid int) (bool, error)
}

// Local controls processes on this machine.
type Local struct {
	log *slog.Logger
}

// NewLocal returns a Controller for local processes.
func NewLocal(log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{log: log.With("component", "process")}
}

var _ Controller = (*Local)(nil)

// IsPaused reports whether the first direct child of pid is stopped.
func (l *Local) IsPaused(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	kids, err := directChildren(ctx, pid)
	if err != nil || len(kids) == 0 {
		return false, err
	}
	return isStopped(ctx, kids[0]), nil
}

func (l *Local) Pause(ctx context.Context, pid int) (bool, error) {
	return l.signalTree(ctx, pid, sigStop)
}

func (l *Local) Resume(ctx context.Context, pid int) (bool, error) {
	return l.signalTree(ctx, pid, sigCont)
}

func (l *Local) Terminate(ctx context.Context, pid int) (bool, error) {
	return l.signalTree(ctx, pid, syscall.SIGTERM)
}

func (l *Local) Kill(ctx context.Context, pid int) (bool, error) {
	return l.signalTree(ctx, pid, syscall.SIGKILL)
}

// signalTree delivers sig to every descendant of pid. It succeeds only if
// every delivery succeeded; failures on individual pids do not stop the rest.
func (l *Local) signalTree(ctx context.Context, pid int, sig syscall.Signal) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	pids, err := Descendants(ctx, pid)
	if err != nil {
		return false, err
	}
	if len(pids) == 0 {
		l.log.Debug("no descendants to signal", "pid", pid, "signal", sig.String())
		return false, nil
	}
	var errs []error
	for _, p := range pids {
		if err := sendSignal(p, sig); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		l.log.Warn("signal delivery failed", "pid", pid, "signal", sig.String(), "failed", len(errs), "total", len(pids))
		return false, errors.Join(errs...)
	}
	return true, nil
}
