package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/pausr/internal/history"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/metrics"
)

// SuspendState is the global "system is about to suspend" flag. It is set
// on a suspend request and cleared on resume; focus evaluation is skipped
// while it is set.
type SuspendState struct {
	pending atomic.Bool
}

func (s *SuspendState) Begin() {
	s.pending.Store(true)
	metrics.SetSuspendPending(true)
}

func (s *SuspendState) End() {
	s.pending.Store(false)
	metrics.SetSuspendPending(false)
}

func (s *SuspendState) Pending() bool { return s.pending.Load() }

// suspendSweep snapshots and pauses every running app before suspend.
func (e *Engine) suspendSweep(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ObserveSweep("suspend", time.Since(start).Seconds()) }()
	e.rec.Record(history.NewEvent(history.EventSuspend, 0, 0, "suspend", true))

	var g errgroup.Group
	for _, a := range e.apps.List() {
		g.Go(func() error {
			rec, err := e.store.GetOrCreate(ctx, a.AppID)
			if err != nil {
				e.log.Warn("suspend: app lookup failed", "app_id", a.AppID, "error", err)
				return nil
			}
			paused := e.isPaused(ctx, rec.AppID, rec.PID)
			_ = e.store.SnapshotBeforeSuspend(rec.AppID, paused)
			if !paused {
				ok := e.pause(ctx, rec.AppID, rec.PID, "suspend")
				_ = e.store.SetPaused(rec.AppID, ok, ok)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// wakeSweep resumes every running app that was not paused before suspend.
func (e *Engine) wakeSweep(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ObserveSweep("resume", time.Since(start).Seconds()) }()
	e.rec.Record(history.NewEvent(history.EventWake, 0, 0, "resume", true))

	var g errgroup.Group
	for _, a := range e.apps.List() {
		g.Go(func() error {
			e.ResumeApp(ctx, a.AppID)
			return nil
		})
	}
	_ = g.Wait()
}

// ResumeApp re-queries the pause state of appID and resumes it when it is
// paused and was not already paused before the last suspend.
func (e *Engine) ResumeApp(ctx context.Context, appID uint32) {
	rec, err := e.store.GetOrCreate(ctx, appID)
	if err != nil {
		e.log.Warn("resume: app lookup failed", "app_id", appID, "error", err)
		return
	}
	paused := e.isPaused(ctx, appID, rec.PID)
	_ = e.store.SetPaused(appID, paused, false)
	if paused && !rec.PausedBeforeSuspend {
		ok := e.resume(ctx, appID, rec.PID, "resume")
		_ = e.store.SetPaused(appID, !ok, ok)
	}
}

// ResumeForTermination resumes an app the host is about to terminate so it
// can handle the signal. id may be a composite 64-bit id, a number or a
// decimal string.
func (e *Engine) ResumeForTermination(ctx context.Context, id any) error {
	appID, err := host.NormalizeAppID(id)
	if err != nil {
		return err
	}
	e.ResumeApp(ctx, appID)
	return nil
}
