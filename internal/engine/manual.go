package engine

import (
	"context"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/history"
	"github.com/loykin/pausr/internal/metrics"
	"github.com/loykin/pausr/internal/settings"
)

// Toggle resumes appID when it is paused and pauses it otherwise. With
// automatic pausing on, a manual toggle also flips the sticky override so
// that focus changes leave the app alone.
func (e *Engine) Toggle(ctx context.Context, appID uint32) (appstate.Record, error) {
	rec, err := e.store.GetOrCreate(ctx, appID)
	if err != nil {
		return rec, err
	}
	return e.manual(ctx, rec, !rec.Paused)
}

// Pause pauses appID. It is a no-op when the app is already paused.
func (e *Engine) Pause(ctx context.Context, appID uint32) (appstate.Record, error) {
	return e.setManual(ctx, appID, true)
}

// Resume resumes appID. It is a no-op when the app is not paused.
func (e *Engine) Resume(ctx context.Context, appID uint32) (appstate.Record, error) {
	return e.setManual(ctx, appID, false)
}

func (e *Engine) setManual(ctx context.Context, appID uint32, want bool) (appstate.Record, error) {
	rec, err := e.store.GetOrCreate(ctx, appID)
	if err != nil {
		return rec, err
	}
	if rec.Paused == want {
		return rec, nil
	}
	return e.manual(ctx, rec, want)
}

func (e *Engine) manual(ctx context.Context, rec appstate.Record, pause bool) (appstate.Record, error) {
	var ok bool
	if pause {
		ok = e.pause(ctx, rec.AppID, rec.PID, "manual")
	} else {
		ok = e.resume(ctx, rec.AppID, rec.PID, "manual")
	}
	if !ok {
		return rec, ErrNoChange
	}
	_ = e.store.SetPaused(rec.AppID, pause, true)
	if e.settings.Snapshot().AutoPause {
		if rec.Sticky {
			e.store.ClearSticky(rec.AppID)
			e.rec.Record(history.NewEvent(history.EventUnsticky, rec.AppID, rec.PID, "manual", true))
		} else if err := e.store.SetSticky(ctx, rec.AppID); err == nil {
			e.rec.Record(history.NewEvent(history.EventSticky, rec.AppID, rec.PID, "manual", true))
		}
		e.reconcileGauges()
	}
	out, found := e.store.Get(rec.AppID)
	if !found {
		return rec, appstate.ErrUnknownApp
	}
	return out, nil
}

// Terminate resumes appID so it can handle the signal, then sends SIGTERM
// to its process tree, or SIGKILL when force is set.
func (e *Engine) Terminate(ctx context.Context, appID uint32, force bool) error {
	rec, err := e.store.GetOrCreate(ctx, appID)
	if err != nil {
		return err
	}
	e.ResumeApp(ctx, appID)
	fn, name := e.ctrl.Terminate, "terminate"
	if force {
		fn, name = e.ctrl.Kill, "kill"
	}
	ok, err := fn(ctx, rec.PID)
	if err != nil || !ok {
		e.log.Warn(name+" failed", "app_id", appID, "pid", rec.PID, "error", err)
		ok = false
	}
	metrics.IncAction(name, "manual", ok)
	e.rec.Record(history.NewEvent(history.EventTerminate, appID, rec.PID, name, ok))
	if !ok {
		return ErrNoChange
	}
	return nil
}

// SetAutoPause turns automatic focus pausing on or off. Every sticky
// override is cleared first.
func (e *Engine) SetAutoPause(ctx context.Context, v bool) error {
	e.store.ClearAllSticky()
	e.reconcileGauges()
	return e.settings.SetBool(ctx, settings.KeyAutoPause, v)
}

func (e *Engine) SetOverlayPause(ctx context.Context, v bool) error {
	return e.settings.SetBool(ctx, settings.KeyOverlayPause, v)
}

func (e *Engine) SetPauseBeforeSuspend(ctx context.Context, v bool) error {
	return e.settings.SetBool(ctx, settings.KeyPauseBeforeSuspend, v)
}

func (e *Engine) AddExclusion(ctx context.Context, appID uint32) {
	e.settings.AddExclusion(ctx, appID)
}

func (e *Engine) RemoveExclusion(ctx context.Context, appID uint32) {
	e.settings.RemoveExclusion(ctx, appID)
}

// ApplySettings stores a partial settings update. A change of AutoPause
// goes through SetAutoPause.
func (e *Engine) ApplySettings(ctx context.Context, p settings.Patch) error {
	if p.AutoPause != nil {
		if err := e.SetAutoPause(ctx, *p.AutoPause); err != nil {
			return err
		}
		p.AutoPause = nil
	}
	return e.settings.Apply(ctx, p)
}

func (e *Engine) SubscribePause(appID uint32, fn func(bool)) appstate.Unsubscribe {
	return e.store.SubscribePause(appID, fn)
}

func (e *Engine) SubscribeSticky(appID uint32, fn func(bool)) appstate.Unsubscribe {
	return e.store.SubscribeSticky(appID, fn)
}
