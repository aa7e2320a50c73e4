package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/metrics"
)

// onFocus runs the cheap gates of a focus evaluation on the loop and
// returns the sweep to run on a worker, or nil when the event stops here.
func (e *Engine) onFocus(ev host.FocusChange) func(context.Context) {
	if !e.throttle.Allow(e.clock.Now()) {
		metrics.IncEvaluation("throttled")
		return nil
	}
	if e.starting {
		metrics.IncEvaluation("starting")
		return nil
	}
	if e.suspend.Pending() {
		metrics.IncEvaluation("suspending")
		return nil
	}
	keyPending := e.keys.Pending()
	if !keyPending && ev.PID == e.lastPID && ev.AppID == e.lastAppID {
		metrics.IncEvaluation("duplicate")
		return nil
	}
	e.lastPID = ev.PID
	overlay := e.cfg.OverlayAppID
	if !keyPending && ev.AppID == overlay && e.lastAppID == overlay {
		metrics.IncEvaluation("duplicate")
		return nil
	}
	e.lastAppID = ev.AppID

	s := e.settings.Snapshot()
	if !s.AutoPause {
		metrics.IncEvaluation("disabled")
		return nil
	}
	overlayPause := ev.AppID == overlay && keyPending && s.OverlayPause
	return func(ctx context.Context) {
		e.evaluate(ctx, ev, overlayPause)
	}
}

// evaluate resolves the focused app and pauses or resumes every running app.
func (e *Engine) evaluate(ctx context.Context, ev host.FocusChange, overlayPause bool) {
	start := time.Now()
	appID := ev.AppID
	if appID == 0 || appID == e.cfg.OverlayAppID {
		id, err := e.res.AppIDFromPID(ctx, ev.PID)
		if err != nil || id == 0 {
			e.log.Debug("focused pid has no app id", "pid", ev.PID, "error", err)
			metrics.IncEvaluation("unresolved")
			return
		}
		appID = id
	}
	focused, err := e.res.PIDFromAppID(ctx, appID)
	if err != nil || focused == 0 {
		e.log.Debug("focused app has no pid", "app_id", appID, "error", err)
		metrics.IncEvaluation("unresolved")
		return
	}
	metrics.IncEvaluation("evaluated")
	e.log.Debug("focus evaluation", "app_id", appID, "pid", focused, "overlay_pause", overlayPause)

	cur := e.settings.Snapshot()
	var g errgroup.Group
	for _, a := range e.apps.List() {
		if cur.Excluded(a.AppID) {
			continue
		}
		g.Go(func() error {
			rec, err := e.store.GetOrCreate(ctx, a.AppID)
			if err != nil {
				e.log.Warn("focus: app lookup failed", "app_id", a.AppID, "error", err)
				return nil
			}
			if rec.Sticky {
				return nil
			}
			e.applyFocus(ctx, rec, focused, overlayPause)
			return nil
		})
	}
	_ = g.Wait()
	metrics.ObserveSweep("focus", time.Since(start).Seconds())
}

func (e *Engine) applyFocus(ctx context.Context, rec appstate.Record, focused int, overlayPause bool) {
	paused := e.isPaused(ctx, rec.AppID, rec.PID)
	if rec.PID == focused && !overlayPause {
		if !paused {
			_ = e.store.SetPaused(rec.AppID, false, false)
			return
		}
		ok := e.resume(ctx, rec.AppID, rec.PID, "focus")
		_ = e.store.SetPaused(rec.AppID, !ok, true)
		return
	}
	if paused {
		_ = e.store.SetPaused(rec.AppID, true, false)
		return
	}
	reason := "unfocused"
	if overlayPause {
		reason = "overlay"
	}
	ok := e.pause(ctx, rec.AppID, rec.PID, reason)
	_ = e.store.SetPaused(rec.AppID, ok, true)
}
