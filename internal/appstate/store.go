// Package appstate keeps one metadata record per tracked application: its
// controlling pid, last known pause state, the state before suspend, the
// sticky user override, and the subscribers to pause and sticky changes.
package appstate

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loykin/pausr/internal/detector"
	"github.com/loykin/pausr/internal/process"
)

var ErrUnknownApp = errors.New("unknown app")

// Record is a snapshot of an application's metadata.
type Record struct {
	AppID               uint32    `json:"app_id"`
	PID                 int       `json:"pid"`
	Paused              bool      `json:"paused"`
	PausedBeforeSuspend bool      `json:"paused_before_suspend"`
	Sticky              bool      `json:"sticky"`
	StartedAt           time.Time `json:"started_at,omitzero"`
	CreatedAt           time.Time `json:"created_at"`
}

type entry struct {
	rec    Record
	pause  observers
	sticky observers
}

// Store is the AppMetadataStore. Records are created lazily on first use and
// destroyed by Remove or Reconcile. All methods are safe for concurrent use;
// subscriber callbacks run outside the lock, in registration order.
type Store struct {
	ctrl process.Controller
	res  detector.Resolver
	log  *slog.Logger
	now  func() time.Time

	sf singleflight.Group

	mu      sync.Mutex
	entries map[uint32]*entry
	nextID  uint64
	// deferred subscriptions waiting for their record
	waiting map[uint64]bool
}

// Option customizes a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(ctrl process.Controller, res detector.Resolver, opts ...Option) *Store {
	s := &Store{
		ctrl:    ctrl,
		res:     res,
		log:     slog.Default(),
		now:     time.Now,
		entries: make(map[uint32]*entry),
		waiting: make(map[uint64]bool),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "appstate")
	return s
}

// lookupTimeout bounds a single pid resolution.
const lookupTimeout = 10 * time.Second

// GetOrCreate returns the record for appID, creating it on first use by
// resolving the controlling pid and querying its pause state. Concurrent
// callers for the same id share one resolution. A failed resolution still
// creates the record, with pid 0.
//
// The resolution outlives the caller: the record is shared, so a cancelled
// request must not cache pid 0 for everyone.
func (s *Store) GetOrCreate(ctx context.Context, appID uint32) (Record, error) {
	if r, ok := s.Get(appID); ok {
		return r, nil
	}
	v, err, _ := s.sf.Do(strconv.FormatUint(uint64(appID), 10), func() (any, error) {
		if r, ok := s.Get(appID); ok {
			return r, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		rec := s.build(lctx, appID)
		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.entries[appID]; ok {
			return e.rec, nil
		}
		s.entries[appID] = &entry{rec: rec}
		return rec, nil
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

func (s *Store) build(ctx context.Context, appID uint32) Record {
	rec := Record{AppID: appID, CreatedAt: s.now()}
	pid, err := s.res.PIDFromAppID(ctx, appID)
	if err != nil || pid <= 0 {
		s.log.Debug("pid lookup failed", "app_id", appID, "error", err)
		return rec
	}
	rec.PID = pid
	rec.StartedAt = startTime(pid)
	paused, err := s.ctrl.IsPaused(ctx, pid)
	if err != nil {
		s.log.Warn("is_paused failed", "app_id", appID, "pid", pid, "error", err)
	}
	rec.Paused = paused
	return rec
}

func startTime(pid int) time.Time {
	if sec := process.StartUnix(pid); sec > 0 {
		return time.Unix(sec, 0)
	}
	return time.Time{}
}

// Get returns the record for appID without creating it.
func (s *Store) Get(appID uint32) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[appID]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// List returns all records ordered by app id.
func (s *Store) List() []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.rec)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.AppID, b.AppID) })
	return out
}

// SetPaused stores the pause state and, when notify is set, fans it out to
// the pause subscribers.
func (s *Store) SetPaused(appID uint32, paused, notify bool) error {
	s.mu.Lock()
	e, ok := s.entries[appID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownApp
	}
	e.rec.Paused = paused
	var fns []func(bool)
	if notify {
		fns = e.pause.snapshot()
	}
	s.mu.Unlock()
	fire(fns, paused)
	return nil
}

// SnapshotBeforeSuspend records the pause state observed when suspend began.
// The current pause state is updated to the same value.
func (s *Store) SnapshotBeforeSuspend(appID uint32, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[appID]
	if !ok {
		return ErrUnknownApp
	}
	e.rec.Paused = paused
	e.rec.PausedBeforeSuspend = paused
	return nil
}

// SetSticky turns on the sticky override, creating the record if needed.
func (s *Store) SetSticky(ctx context.Context, appID uint32) error {
	if _, err := s.GetOrCreate(ctx, appID); err != nil {
		return err
	}
	return s.setSticky(appID, true)
}

// ClearSticky turns off the sticky override. Unknown ids are ignored.
func (s *Store) ClearSticky(appID uint32) {
	_ = s.setSticky(appID, false)
}

func (s *Store) setSticky(appID uint32, v bool) error {
	s.mu.Lock()
	e, ok := s.entries[appID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownApp
	}
	e.rec.Sticky = v
	fns := e.sticky.snapshot()
	s.mu.Unlock()
	fire(fns, v)
	return nil
}

// ClearAllSticky turns off the sticky override of every record and notifies
// each record's sticky subscribers with false.
func (s *Store) ClearAllSticky() {
	s.mu.Lock()
	ids := make([]uint32, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	slices.Sort(ids)
	for _, id := range ids {
		s.ClearSticky(id)
	}
}

// Remove clears the sticky flag (notifying subscribers) and destroys the
// record together with all of its subscribers.
func (s *Store) Remove(appID uint32) {
	s.ClearSticky(appID)
	s.mu.Lock()
	delete(s.entries, appID)
	s.mu.Unlock()
}

// Reconcile removes every record whose id is not in live and returns the
// removed ids in ascending order.
func (s *Store) Reconcile(live map[uint32]bool) []uint32 {
	s.mu.Lock()
	var gone []uint32
	for id := range s.entries {
		if !live[id] {
			gone = append(gone, id)
		}
	}
	s.mu.Unlock()
	slices.Sort(gone)
	for _, id := range gone {
		s.Remove(id)
	}
	return gone
}

// SubscribePause registers fn for pause state changes of appID.
func (s *Store) SubscribePause(appID uint32, fn func(bool)) Unsubscribe {
	return s.subscribe(appID, fn, func(e *entry) *observers { return &e.pause })
}

// SubscribeSticky registers fn for sticky state changes of appID.
func (s *Store) SubscribeSticky(appID uint32, fn func(bool)) Unsubscribe {
	return s.subscribe(appID, fn, func(e *entry) *observers { return &e.sticky })
}

// subscribe registers immediately when the record exists. Otherwise the
// record is created in the background and the registration happens then,
// unless the subscription was cancelled first.
func (s *Store) subscribe(appID uint32, fn func(bool), pick func(*entry) *observers) Unsubscribe {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if e, ok := s.entries[appID]; ok {
		pick(e).add(id, fn)
		s.mu.Unlock()
	} else {
		s.waiting[id] = true
		s.mu.Unlock()
		go func() {
			if _, err := s.GetOrCreate(context.Background(), appID); err != nil {
				s.log.Debug("deferred subscription dropped", "app_id", appID, "error", err)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.waiting[id] {
				return
			}
			delete(s.waiting, id)
			if e, ok := s.entries[appID]; ok {
				pick(e).add(id, fn)
			}
		}()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.waiting, id)
			if e, ok := s.entries[appID]; ok {
				pick(e).remove(id)
			}
		})
	}
}

func (s *Store) subscriberCount(appID uint32) (pause, sticky int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[appID]; ok {
		return len(e.pause), len(e.sticky)
	}
	return 0, 0
}
