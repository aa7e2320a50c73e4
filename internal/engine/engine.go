// Package engine is the focus-driven pause orchestrator. It consumes host
// events (focus changes, key presses, launch progress, app lifetime,
// suspend and resume) and decides for every running app whether its
// process tree should be paused or resumed.
//
// All events enter through Submit and are handled by a single loop
// goroutine (Run) that owns the launch, dedupe, key and throttle state.
// Work that calls process primitives runs in worker goroutines so the loop
// never blocks on them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/detector"
	"github.com/loykin/pausr/internal/history"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/metrics"
	"github.com/loykin/pausr/internal/process"
	"github.com/loykin/pausr/internal/settings"
)

var (
	// ErrNoChange is returned by manual operations whose primitive did not succeed.
	ErrNoChange = errors.New("no change")
	// ErrStopped is returned by Submit after Run has returned.
	ErrStopped = errors.New("engine stopped")
)

// Config holds the timing constants of the orchestrator.
type Config struct {
	OverlayAppID         uint32
	Throttle             time.Duration
	KeyWindow            time.Duration
	GraceDelay           time.Duration
	ReconcileInterval    time.Duration
	LaunchCompleteStatus string
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		OverlayAppID:         host.OverlayAppID,
		Throttle:             500 * time.Millisecond,
		KeyWindow:            time.Second,
		GraceDelay:           500 * time.Millisecond,
		LaunchCompleteStatus: "Completed",
	}
}

// Deps are the collaborators of the engine. Controller, Resolver, Apps and
// Settings are required.
type Deps struct {
	Controller process.Controller
	Resolver   detector.Resolver
	Apps       host.RunningApps
	Settings   *settings.Manager
	Store      *appstate.Store
	History    *history.Recorder
	Logger     *slog.Logger
	Clock      Clock
}

type envelope struct {
	ev   any
	done chan struct{}
}

// Engine is the orchestrator. Create it with New and start it with Run.
type Engine struct {
	cfg      Config
	ctrl     process.Controller
	res      detector.Resolver
	apps     host.RunningApps
	settings *settings.Manager
	store    *appstate.Store
	rec      *history.Recorder
	log      *slog.Logger
	clock    Clock

	suspend SuspendState
	keys    *Debouncer

	events  chan envelope
	stopped chan struct{}
	workers sync.WaitGroup

	// owned by the loop goroutine
	throttle  *Throttler
	starting  bool
	lastPID   int
	lastAppID uint32

	// mirrors of loop state for Status
	mu            sync.Mutex
	startingShown bool

	runSubs runningSubs
}

// New builds an Engine. Zero Config fields fall back to DefaultConfig.
func New(cfg Config, d Deps) (*Engine, error) {
	if d.Controller == nil || d.Resolver == nil || d.Apps == nil || d.Settings == nil {
		return nil, errors.New("engine: controller, resolver, apps and settings are required")
	}
	def := DefaultConfig()
	if cfg.OverlayAppID == 0 {
		cfg.OverlayAppID = def.OverlayAppID
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = def.Throttle
	}
	if cfg.KeyWindow <= 0 {
		cfg.KeyWindow = def.KeyWindow
	}
	if cfg.GraceDelay < 0 {
		cfg.GraceDelay = def.GraceDelay
	}
	if cfg.LaunchCompleteStatus == "" {
		cfg.LaunchCompleteStatus = def.LaunchCompleteStatus
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := d.Clock
	if clock == nil {
		clock = realClock{}
	}
	st := d.Store
	if st == nil {
		st = appstate.New(d.Controller, d.Resolver, appstate.WithLogger(log))
	}
	return &Engine{
		cfg:      cfg,
		ctrl:     d.Controller,
		res:      d.Resolver,
		apps:     d.Apps,
		settings: d.Settings,
		store:    st,
		rec:      d.History,
		log:      log.With("component", "engine"),
		clock:    clock,
		keys:     NewDebouncer(clock, cfg.KeyWindow),
		throttle: NewThrottler(cfg.Throttle),
		events:   make(chan envelope, 64),
		stopped:  make(chan struct{}),
	}, nil
}

// Store exposes the app metadata store for presentation layers.
func (e *Engine) Store() *appstate.Store { return e.store }

// Settings exposes the settings manager.
func (e *Engine) Settings() *settings.Manager { return e.settings }

// Apps returns the host's current running list.
func (e *Engine) Apps() []host.App { return e.apps.List() }

// Submit validates ev and queues it for the loop. It returns without
// waiting for the event to be handled.
func (e *Engine) Submit(ev any) error {
	_, err := e.enqueue(context.Background(), ev, false)
	return err
}

// SubmitWait queues ev and waits until it has been fully handled, including
// any sweep it triggers. Delayed cleanup is not waited for.
func (e *Engine) SubmitWait(ctx context.Context, ev any) error {
	done, err := e.enqueue(ctx, ev, true)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

func (e *Engine) enqueue(ctx context.Context, ev any, wait bool) (chan struct{}, error) {
	if err := validate(ev); err != nil {
		return nil, err
	}
	env := envelope{ev: ev}
	if wait {
		env.done = make(chan struct{})
	}
	select {
	case e.events <- env:
		return env.done, nil
	case <-e.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func validate(ev any) error {
	switch v := ev.(type) {
	case host.FocusChange:
		return v.Validate()
	case host.KeyEvent:
		return v.Validate()
	case host.GameAction:
		return v.Validate()
	case host.Lifetime:
		return v.Validate()
	case host.RunningAppsUpdate:
		return v.Validate()
	case host.SuspendRequest, host.ResumeFromSuspend:
		return nil
	}
	return fmt.Errorf("%w: unsupported event %T", host.ErrInvalidEvent, ev)
}

// Run drains the event queue until ctx is cancelled, then waits for
// in-flight workers.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		close(e.stopped)
		e.workers.Wait()
	}()
	var tick <-chan time.Time
	if e.cfg.ReconcileInterval > 0 {
		t := time.NewTicker(e.cfg.ReconcileInterval)
		defer t.Stop()
		tick = t.C
	}
	e.log.Info("engine started", "throttle", e.cfg.Throttle, "key_window", e.cfg.KeyWindow, "grace_delay", e.cfg.GraceDelay)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case env := <-e.events:
			e.handle(ctx, env)
		case <-tick:
			e.reconcile("interval")
		}
	}
}

// handle runs on the loop goroutine.
func (e *Engine) handle(ctx context.Context, env envelope) {
	finish := func() {
		if env.done != nil {
			close(env.done)
		}
	}
	switch ev := env.ev.(type) {
	case host.FocusChange:
		work := e.onFocus(ev)
		e.spawn(ctx, work, finish)
		return
	case host.KeyEvent:
		e.onKey(ev)
	case host.GameAction:
		e.onGameAction(ev)
	case host.Lifetime:
		e.onLifetime(ev)
	case host.RunningAppsUpdate:
		e.onRunningApps(ev)
	case host.SuspendRequest:
		e.spawn(ctx, e.onSuspend(), finish)
		return
	case host.ResumeFromSuspend:
		e.spawn(ctx, e.onResume(), finish)
		return
	}
	finish()
}

// spawn runs work on a worker goroutine; a nil work finishes immediately.
func (e *Engine) spawn(ctx context.Context, work func(context.Context), finish func()) {
	if work == nil {
		finish()
		return
	}
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer finish()
		work(context.WithoutCancel(ctx))
	}()
}

func (e *Engine) onKey(ev host.KeyEvent) {
	if ev.Code() == 0 {
		e.keys.Trigger()
		return
	}
	e.keys.Cancel()
}

func (e *Engine) onGameAction(ev host.GameAction) {
	e.starting = ev.Status != e.cfg.LaunchCompleteStatus
	e.mu.Lock()
	e.startingShown = e.starting
	e.mu.Unlock()
	if !e.starting {
		e.emitRunningApps()
	}
}

func (e *Engine) onRunningApps(ev host.RunningAppsUpdate) {
	setter, ok := e.apps.(interface{ Set([]host.App) })
	if !ok {
		e.log.Warn("running apps source is read-only; update ignored")
		return
	}
	setter.Set(ev.Apps)
}

func (e *Engine) onSuspend() func(context.Context) {
	e.suspend.Begin()
	if !e.settings.Snapshot().PauseBeforeSuspend {
		return nil
	}
	return e.suspendSweep
}

func (e *Engine) onResume() func(context.Context) {
	e.suspend.End()
	if !e.settings.Snapshot().PauseBeforeSuspend {
		return nil
	}
	return e.wakeSweep
}

// Status is a point-in-time view of the orchestrator flags.
type Status struct {
	SuspendPending bool `json:"suspend_pending"`
	Starting       bool `json:"starting"`
	KeyPending     bool `json:"key_pending"`
	Tracked        int  `json:"tracked"`
	Running        int  `json:"running"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	starting := e.startingShown
	e.mu.Unlock()
	return Status{
		SuspendPending: e.suspend.Pending(),
		Starting:       starting,
		KeyPending:     e.keys.Pending(),
		Tracked:        len(e.store.List()),
		Running:        len(e.apps.List()),
	}
}

// isPaused queries the primitive; errors count as "not paused".
func (e *Engine) isPaused(ctx context.Context, appID uint32, pid int) bool {
	paused, err := e.ctrl.IsPaused(ctx, pid)
	if err != nil {
		e.log.Warn("is_paused failed", "app_id", appID, "pid", pid, "error", err)
	}
	return paused
}

func (e *Engine) pause(ctx context.Context, appID uint32, pid int, reason string) bool {
	return e.act(ctx, "pause", e.ctrl.Pause, history.EventPause, appID, pid, reason)
}

func (e *Engine) resume(ctx context.Context, appID uint32, pid int, reason string) bool {
	return e.act(ctx, "resume", e.ctrl.Resume, history.EventResume, appID, pid, reason)
}

type primitive func(ctx context.Context, pid int) (bool, error)

// act invokes a primitive; false or an error means the state is unchanged.
func (e *Engine) act(ctx context.Context, name string, fn primitive, t history.EventType, appID uint32, pid int, reason string) bool {
	ok, err := fn(ctx, pid)
	if err != nil || !ok {
		e.log.Warn(name+" failed", "app_id", appID, "pid", pid, "reason", reason, "error", err)
		ok = false
	} else {
		e.log.Debug(name, "app_id", appID, "pid", pid, "reason", reason)
	}
	metrics.IncAction(name, reason, ok)
	e.rec.Record(history.NewEvent(t, appID, pid, reason, ok))
	return ok
}
