package engine

import (
	"sync"
	"time"
)

// Clock abstracts time so debounce, throttle and grace delays can be tested.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer the engine needs.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Debouncer tracks whether a qualifying key press happened recently. A
// qualifying press sets the flag and (re)arms an auto clear after window;
// any other press clears the flag and cancels the pending clear.
type Debouncer struct {
	clock  Clock
	window time.Duration

	mu      sync.Mutex
	pending bool
	gen     uint64
	timer   Timer
}

func NewDebouncer(c Clock, window time.Duration) *Debouncer {
	return &Debouncer{clock: c, window: window}
}

// Trigger records a qualifying press.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// a later Trigger or Cancel supersedes this clear
		if d.gen == gen {
			d.pending = false
			d.timer = nil
		}
	})
}

// Cancel clears the flag and any pending auto clear.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Throttler admits at most one event per interval, on the leading edge.
// Events inside the window are dropped, not deferred.
type Throttler struct {
	interval time.Duration
	last     time.Time
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{interval: interval}
}

// Allow reports whether an event at now may proceed and, if so, opens a
// new window. It is not safe for concurrent use; the event loop owns it.
func (t *Throttler) Allow(now time.Time) bool {
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}
