package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pausr/internal/detector"
	"github.com/loykin/pausr/internal/host"
	"github.com/loykin/pausr/internal/settings"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeCtrl struct {
	mu      sync.Mutex
	paused  map[int]bool
	calls   []string
	queries int
}

func newFakeCtrl() *fakeCtrl { return &fakeCtrl{paused: map[int]bool{}} }

func (f *fakeCtrl) log(op string, pid int) {
	f.calls = append(f.calls, fmt.Sprintf("%s %d", op, pid))
}

func (f *fakeCtrl) IsPaused(_ context.Context, pid int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	return f.paused[pid], nil
}

func (f *fakeCtrl) Pause(_ context.Context, pid int) (bool, error) {
	return f.set(pid, "pause", true)
}

func (f *fakeCtrl) Resume(_ context.Context, pid int) (bool, error) {
	return f.set(pid, "resume", false)
}

func (f *fakeCtrl) set(pid int, op string, v bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pid <= 0 {
		return false, nil
	}
	f.log(op, pid)
	f.paused[pid] = v
	return true, nil
}

func (f *fakeCtrl) Terminate(_ context.Context, pid int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("terminate", pid)
	return pid > 0, nil
}

func (f *fakeCtrl) Kill(_ context.Context, pid int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log("kill", pid)
	return pid > 0, nil
}

func (f *fakeCtrl) isPaused(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused[pid]
}

func (f *fakeCtrl) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCtrl) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

type fakeResolver struct {
	pids map[uint32]int
	apps map[int]uint32
}

func (f *fakeResolver) PIDFromAppID(_ context.Context, id uint32) (int, error) {
	if pid, ok := f.pids[id]; ok {
		return pid, nil
	}
	return 0, detector.ErrNotFound
}

func (f *fakeResolver) AppIDFromPID(_ context.Context, pid int) (uint32, error) {
	if id, ok := f.apps[pid]; ok {
		return id, nil
	}
	return 0, detector.ErrNotFound
}

func (f *fakeResolver) Describe() string { return "fake" }

const (
	appA, pidA = uint32(100), 1000
	appB, pidB = uint32(200), 2000
)

type harness struct {
	e     *Engine
	ctrl  *fakeCtrl
	clock *fakeClock
	reg   *host.Registry
	set   *settings.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctrl:  newFakeCtrl(),
		clock: newFakeClock(),
		reg:   host.NewRegistry(),
		set:   settings.New(nil),
	}
	h.reg.Set([]host.App{{AppID: appA, DisplayName: "A"}, {AppID: appB, DisplayName: "B"}})
	res := &fakeResolver{
		pids: map[uint32]int{appA: pidA, appB: pidB},
		apps: map[int]uint32{pidA: appA, pidA + 1: appA, pidB: appB},
	}
	e, err := New(Config{}, Deps{
		Controller: h.ctrl,
		Resolver:   res,
		Apps:       h.reg,
		Settings:   h.set,
		Clock:      h.clock,
	})
	require.NoError(t, err)
	h.e = e

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) submit(t *testing.T, ev any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.e.SubmitWait(ctx, ev))
}

// focus submits a focus change outside the throttle window of the previous one.
func (h *harness) focus(t *testing.T, appID uint32, pid int) {
	t.Helper()
	h.clock.Advance(600 * time.Millisecond)
	h.submit(t, host.FocusChange{AppID: appID, PID: pid})
}

func (h *harness) enable(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, h.set.SetBool(context.Background(), key, true))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestSubmit_RejectsInvalidEvents(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.e.Submit(host.FocusChange{PID: -1}), host.ErrInvalidEvent)
	assert.ErrorIs(t, h.e.Submit(host.KeyEvent{}), host.ErrInvalidEvent)
	assert.ErrorIs(t, h.e.Submit("focus"), host.ErrInvalidEvent)
}

func TestFocus_SwitchBetweenApps(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.focus(t, appA, pidA)
	assert.False(t, h.ctrl.isPaused(pidA))
	assert.True(t, h.ctrl.isPaused(pidB))

	h.focus(t, appB, pidB)
	assert.True(t, h.ctrl.isPaused(pidA))
	assert.False(t, h.ctrl.isPaused(pidB))
	log := h.ctrl.callLog()
	require.Len(t, log, 3)
	assert.Equal(t, "pause 2000", log[0])
	assert.ElementsMatch(t, []string{"pause 1000", "resume 2000"}, log[1:])

	recA, ok := h.e.Store().Get(appA)
	require.True(t, ok)
	assert.True(t, recA.Paused)
}

func TestFocus_NotifiesPauseSubscribers(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.focus(t, appA, pidA)

	var mu sync.Mutex
	var got []bool
	unsub := h.e.SubscribePause(appB, func(p bool) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	defer unsub()

	h.focus(t, appB, pidB)
	h.focus(t, appA, pidA)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, got)
}

func TestFocus_AutoPauseOff(t *testing.T) {
	h := newHarness(t)
	h.focus(t, appA, pidA)
	assert.Empty(t, h.ctrl.callLog())
}

func TestFocus_Dedupe(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.focus(t, appA, pidA)
	n := h.ctrl.queryCount()
	h.focus(t, appA, pidA)
	assert.Equal(t, n, h.ctrl.queryCount(), "duplicate focus must not re-evaluate")

	// a pending qualifying key forces re-evaluation
	h.submit(t, host.Key(0))
	h.focus(t, appA, pidA)
	assert.Greater(t, h.ctrl.queryCount(), n)
}

func TestFocus_Throttled(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.focus(t, appA, pidA)
	// inside the window: dropped
	h.submit(t, host.FocusChange{AppID: appB, PID: pidB})
	assert.True(t, h.ctrl.isPaused(pidB))
	assert.False(t, h.ctrl.isPaused(pidA))

	h.focus(t, appB, pidB)
	assert.False(t, h.ctrl.isPaused(pidB))
	assert.True(t, h.ctrl.isPaused(pidA))
}

func TestFocus_NoCallsWhileStarting(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.submit(t, host.GameAction{AppID: appA, Action: "LaunchApp", Status: "CreatingProcess"})
	assert.True(t, h.e.Status().Starting)
	h.focus(t, appA, pidA)
	assert.Empty(t, h.ctrl.callLog())
	assert.Zero(t, h.ctrl.queryCount())

	h.submit(t, host.GameAction{AppID: appA, Action: "LaunchApp", Status: "Completed"})
	assert.False(t, h.e.Status().Starting)
	h.focus(t, appA, pidA)
	assert.True(t, h.ctrl.isPaused(pidB))
}

func TestFocus_StickyBlocksAutomation(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.focus(t, appA, pidA)
	require.True(t, h.ctrl.isPaused(pidB))

	rec, err := h.e.Toggle(context.Background(), appB)
	require.NoError(t, err)
	assert.False(t, rec.Paused)
	assert.True(t, rec.Sticky)

	// another window of A: B stays running
	h.focus(t, appA, pidA+1)
	assert.False(t, h.ctrl.isPaused(pidB))

	rec, err = h.e.Toggle(context.Background(), appB)
	require.NoError(t, err)
	assert.True(t, rec.Paused)
	assert.False(t, rec.Sticky)
}

func TestSetAutoPause_ClearsSticky(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	ctx := context.Background()

	_, err := h.e.Toggle(ctx, appA)
	require.NoError(t, err)
	_, err = h.e.Toggle(ctx, appB)
	require.NoError(t, err)

	var mu sync.Mutex
	got := map[uint32][]bool{}
	for _, id := range []uint32{appA, appB} {
		h.e.SubscribeSticky(id, func(v bool) {
			mu.Lock()
			got[id] = append(got[id], v)
			mu.Unlock()
		})
	}

	require.NoError(t, h.e.SetAutoPause(ctx, false))
	for _, r := range h.e.Store().List() {
		assert.False(t, r.Sticky, "app %d", r.AppID)
	}
	mu.Lock()
	assert.Equal(t, []bool{false}, got[appA])
	assert.Equal(t, []bool{false}, got[appB])
	mu.Unlock()
	assert.False(t, h.set.Snapshot().AutoPause)
}

func TestToggle_WithoutAutoPauseLeavesSticky(t *testing.T) {
	h := newHarness(t)
	rec, err := h.e.Toggle(context.Background(), appA)
	require.NoError(t, err)
	assert.True(t, rec.Paused)
	assert.False(t, rec.Sticky)
}

func TestToggle_NoChange(t *testing.T) {
	h := newHarness(t)
	_, err := h.e.Toggle(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNoChange)
}

func TestPauseResume_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.e.Pause(ctx, appA)
	require.NoError(t, err)
	_, err = h.e.Pause(ctx, appA)
	require.NoError(t, err)
	_, err = h.e.Resume(ctx, appA)
	require.NoError(t, err)
	assert.Equal(t, []string{"pause 1000", "resume 1000"}, h.ctrl.callLog())
}

func TestFocus_Overlay(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.enable(t, settings.KeyOverlayPause)

	h.focus(t, appA, pidA)
	require.False(t, h.ctrl.isPaused(pidA))

	h.submit(t, host.Key(0))
	h.focus(t, host.OverlayAppID, pidA)
	assert.True(t, h.ctrl.isPaused(pidA))
	assert.True(t, h.ctrl.isPaused(pidB))
}

func TestFocus_OverlayWithoutSetting(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.focus(t, appA, pidA)
	h.submit(t, host.Key(0))
	h.focus(t, host.OverlayAppID, pidA)
	assert.False(t, h.ctrl.isPaused(pidA))
	assert.True(t, h.ctrl.isPaused(pidB))
}

func TestFocus_OverlayDedupe(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)

	h.focus(t, host.OverlayAppID, pidA)
	require.True(t, h.ctrl.isPaused(pidB))

	// an evaluation now would pause B again
	h.ctrl.mu.Lock()
	h.ctrl.paused[pidB] = false
	h.ctrl.mu.Unlock()
	calls, queries := len(h.ctrl.callLog()), h.ctrl.queryCount()

	// overlay again with a different pid and no key press: dropped
	h.focus(t, host.OverlayAppID, pidA+1)
	assert.Len(t, h.ctrl.callLog(), calls)
	assert.Equal(t, queries, h.ctrl.queryCount())
	assert.False(t, h.ctrl.isPaused(pidB))

	// a qualifying key lets the next overlay focus through
	h.submit(t, host.Key(0))
	h.focus(t, host.OverlayAppID, pidA+1)
	assert.True(t, h.ctrl.isPaused(pidB))
	assert.Equal(t, "pause 2000", h.ctrl.callLog()[len(h.ctrl.callLog())-1])
}

func TestFocus_Exclusion(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.e.AddExclusion(context.Background(), appB)

	h.focus(t, appA, pidA)
	assert.False(t, h.ctrl.isPaused(pidB))

	// manual pausing still applies, and still pins the app
	rec, err := h.e.Pause(context.Background(), appB)
	require.NoError(t, err)
	assert.True(t, h.ctrl.isPaused(pidB))
	assert.True(t, rec.Sticky)

	h.e.RemoveExclusion(context.Background(), appB)
	h.focus(t, appB, pidB)
	assert.True(t, h.ctrl.isPaused(pidA))
}

func TestFocus_UnresolvedAborts(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.focus(t, 0, 4242)
	h.focus(t, 555, 4243)
	assert.Empty(t, h.ctrl.callLog())
}

func TestSuspendResume_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyPauseBeforeSuspend)
	h.enable(t, settings.KeyAutoPause)
	h.ctrl.paused[pidA] = true

	h.submit(t, host.SuspendRequest{})
	assert.True(t, h.e.Status().SuspendPending)
	assert.True(t, h.ctrl.isPaused(pidA))
	assert.True(t, h.ctrl.isPaused(pidB))
	recA, _ := h.e.Store().Get(appA)
	recB, _ := h.e.Store().Get(appB)
	assert.True(t, recA.PausedBeforeSuspend)
	assert.False(t, recB.PausedBeforeSuspend)

	// focus is ignored while suspending
	before := len(h.ctrl.callLog())
	h.focus(t, appB, pidB)
	assert.Len(t, h.ctrl.callLog(), before)

	h.submit(t, host.ResumeFromSuspend{})
	assert.False(t, h.e.Status().SuspendPending)
	assert.True(t, h.ctrl.isPaused(pidA), "app paused before suspend stays paused")
	assert.False(t, h.ctrl.isPaused(pidB))
}

func TestSuspend_SettingOff(t *testing.T) {
	h := newHarness(t)
	h.submit(t, host.SuspendRequest{})
	assert.True(t, h.e.Status().SuspendPending)
	assert.Empty(t, h.ctrl.callLog())
	h.submit(t, host.ResumeFromSuspend{})
	assert.False(t, h.e.Status().SuspendPending)
}

func TestResumeForTermination_CompositeID(t *testing.T) {
	h := newHarness(t)
	h.ctrl.paused[pidA] = true
	composite := uint64(appA)<<32 | 0x02000000
	require.NoError(t, h.e.ResumeForTermination(context.Background(), composite))
	assert.False(t, h.ctrl.isPaused(pidA))

	assert.Error(t, h.e.ResumeForTermination(context.Background(), "not-a-number"))
}

func TestTerminate_ResumesFirst(t *testing.T) {
	h := newHarness(t)
	h.ctrl.paused[pidB] = true
	require.NoError(t, h.e.Terminate(context.Background(), appB, false))
	assert.Equal(t, []string{"resume 2000", "terminate 2000"}, h.ctrl.callLog())

	require.NoError(t, h.e.Terminate(context.Background(), appA, true))
	assert.Equal(t, "kill 1000", h.ctrl.callLog()[2])

	assert.ErrorIs(t, h.e.Terminate(context.Background(), 999, false), ErrNoChange)
}

func TestKeyDebounce(t *testing.T) {
	h := newHarness(t)
	h.submit(t, host.Key(0))
	assert.True(t, h.e.Status().KeyPending)
	h.clock.Advance(999 * time.Millisecond)
	assert.True(t, h.e.Status().KeyPending)
	h.clock.Advance(time.Millisecond)
	assert.False(t, h.e.Status().KeyPending)

	// a second press restarts the window
	h.submit(t, host.Key(0))
	h.clock.Advance(700 * time.Millisecond)
	h.submit(t, host.Key(0))
	h.clock.Advance(700 * time.Millisecond)
	assert.True(t, h.e.Status().KeyPending)
}

func TestKeyDebounce_OtherKeyCancels(t *testing.T) {
	h := newHarness(t)
	h.submit(t, host.Key(0))
	h.submit(t, host.Key(5))
	assert.False(t, h.e.Status().KeyPending)
	h.clock.Advance(2 * time.Second)
	assert.False(t, h.e.Status().KeyPending)
}

func TestJanitor_ReconcilesAfterGrace(t *testing.T) {
	h := newHarness(t)
	h.enable(t, settings.KeyAutoPause)
	h.focus(t, appA, pidA)
	_, ok := h.e.Store().Get(appB)
	require.True(t, ok)

	var mu sync.Mutex
	var sticky []bool
	var lists [][]host.App
	h.e.SubscribeSticky(appB, func(v bool) {
		mu.Lock()
		sticky = append(sticky, v)
		mu.Unlock()
	})
	h.e.SubscribeRunningApps(func(apps []host.App) {
		mu.Lock()
		lists = append(lists, apps)
		mu.Unlock()
	})

	h.reg.Set([]host.App{{AppID: appA, DisplayName: "A"}})
	h.submit(t, host.Lifetime{AppID: appB, Running: false})
	_, ok = h.e.Store().Get(appB)
	assert.True(t, ok, "record survives until the grace delay elapses")

	h.clock.Advance(500 * time.Millisecond)
	_, ok = h.e.Store().Get(appB)
	assert.False(t, ok)
	_, ok = h.e.Store().Get(appA)
	assert.True(t, ok)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false}, sticky)
	require.Len(t, lists, 1)
	assert.Equal(t, []host.App{{AppID: appA, DisplayName: "A"}}, lists[0])
}

func TestRunningAppsNotifier_Order(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var order []string
	sub := func(name string) func([]host.App) {
		return func(apps []host.App) {
			mu.Lock()
			order = append(order, fmt.Sprintf("%s:%d", name, len(apps)))
			mu.Unlock()
		}
	}
	h.e.SubscribeRunningApps(sub("first"))
	unsub := h.e.SubscribeRunningApps(sub("second"))

	h.submit(t, host.GameAction{AppID: appA, Status: "Completed"})
	h.submit(t, host.Lifetime{AppID: appA, Running: true})
	unsub()
	h.submit(t, host.RunningAppsUpdate{Apps: []host.App{{AppID: appA}}})
	h.submit(t, host.Lifetime{AppID: appA, Running: true})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first:2", "second:2", "first:2", "second:2", "first:1"}, order)
}

func TestRunningAppsUpdate_ReplacesList(t *testing.T) {
	h := newHarness(t)
	h.submit(t, host.RunningAppsUpdate{Apps: []host.App{{AppID: 7, DisplayName: "seven"}}})
	assert.Equal(t, []host.App{{AppID: 7, DisplayName: "seven"}}, h.e.Apps())
	assert.Equal(t, 1, h.e.Status().Running)
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	on := true
	ids := []uint32{appB}
	require.NoError(t, h.e.ApplySettings(ctx, settings.Patch{AutoPause: &on, NoAutoPause: &ids}))
	s := h.set.Snapshot()
	assert.True(t, s.AutoPause)
	assert.Equal(t, []uint32{appB}, s.NoAutoPause)

	require.NoError(t, h.e.SetOverlayPause(ctx, true))
	require.NoError(t, h.e.SetPauseBeforeSuspend(ctx, true))
	s = h.set.Snapshot()
	assert.True(t, s.OverlayPause)
	assert.True(t, s.PauseBeforeSuspend)
}

func TestThrottler(t *testing.T) {
	th := NewThrottler(500 * time.Millisecond)
	t0 := time.Unix(0, 0)
	assert.True(t, th.Allow(t0))
	assert.False(t, th.Allow(t0.Add(499*time.Millisecond)))
	assert.True(t, th.Allow(t0.Add(500*time.Millisecond)))
	assert.False(t, th.Allow(t0.Add(600*time.Millisecond)))
}
