// Package settings holds the user-facing switches of the orchestrator and
// persists them through a store.Store, one key per setting.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/loykin/pausr/internal/store"
)

// Persisted keys. The names match the legacy blob so it can be merged as is.
const (
	KeyPauseBeforeSuspend = "pauseBeforeSuspend"
	KeyAutoPause          = "autoPause"
	KeyOverlayPause       = "overlayPause"
	KeyNoAutoPause        = "noAutoPauseSet"
)

var ErrUnknownKey = errors.New("unknown setting")

// Keys lists every persisted key in save order.
var Keys = []string{KeyPauseBeforeSuspend, KeyAutoPause, KeyOverlayPause, KeyNoAutoPause}

// Settings is a read-only snapshot.
type Settings struct {
	PauseBeforeSuspend bool     `json:"pauseBeforeSuspend"`
	AutoPause          bool     `json:"autoPause"`
	OverlayPause       bool     `json:"overlayPause"`
	NoAutoPause        []uint32 `json:"noAutoPauseSet"`
}

// Excluded reports whether automatic focus pausing is disabled for appID.
func (s Settings) Excluded(appID uint32) bool {
	return slices.Contains(s.NoAutoPause, appID)
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	PauseBeforeSuspend *bool     `json:"pauseBeforeSuspend,omitempty"`
	AutoPause          *bool     `json:"autoPause,omitempty"`
	OverlayPause       *bool     `json:"overlayPause,omitempty"`
	NoAutoPause        *[]uint32 `json:"noAutoPauseSet,omitempty"`
}

type data struct {
	pauseBeforeSuspend bool
	autoPause          bool
	overlayPause       bool
	noAutoPause        map[uint32]bool
}

// Manager owns the in-memory settings, which stay authoritative when the
// store fails: persistence errors are logged, never returned to callers.
type Manager struct {
	st         store.Store
	log        *slog.Logger
	legacyFile string

	// wmu orders writers so the store sees values in the same order as memory.
	wmu sync.Mutex
	mu  sync.RWMutex
	cur data
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithLegacyFile sets a JSON file holding a legacy settings blob to migrate.
func WithLegacyFile(path string) Option { return func(m *Manager) { m.legacyFile = path } }

// New returns a Manager with defaults (everything off, empty exclusion set).
// st may be nil for a memory-only manager.
func New(st store.Store, opts ...Option) *Manager {
	m := &Manager{st: st, log: slog.Default(), cur: data{noAutoPause: map[uint32]bool{}}}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "settings")
	return m
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Settings {
	ids := slices.Sorted(maps.Keys(m.cur.noAutoPause))
	if ids == nil {
		ids = []uint32{}
	}
	return Settings{
		PauseBeforeSuspend: m.cur.pauseBeforeSuspend,
		AutoPause:          m.cur.autoPause,
		OverlayPause:       m.cur.overlayPause,
		NoAutoPause:        ids,
	}
}

// Init runs the legacy migration and then loads the stored settings.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.Migrate(ctx); err != nil {
		m.log.Error("legacy migration failed", "error", err)
	}
	return m.Load(ctx)
}

// Load merges every stored key over the current values and writes all keys
// back so the store always holds a complete set.
func (m *Manager) Load(ctx context.Context) error {
	if m.st == nil {
		return nil
	}
	stored, err := m.st.All(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	m.merge(stored)
	m.saveAll(ctx)
	return nil
}

// merge applies every known key present in kv; bad values are logged and skipped.
func (m *Manager) merge(kv map[string]json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range Keys {
		raw, ok := kv[k]
		if !ok {
			continue
		}
		if err := m.applyLocked(k, raw); err != nil {
			m.log.Warn("ignoring stored setting", "key", k, "error", err)
		}
	}
}

func (m *Manager) applyLocked(key string, raw json.RawMessage) error {
	switch key {
	case KeyPauseBeforeSuspend, KeyAutoPause, KeyOverlayPause:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		switch key {
		case KeyPauseBeforeSuspend:
			m.cur.pauseBeforeSuspend = b
		case KeyAutoPause:
			m.cur.autoPause = b
		default:
			m.cur.overlayPause = b
		}
	case KeyNoAutoPause:
		var ids []uint32
		if err := json.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		set := make(map[uint32]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		m.cur.noAutoPause = set
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func (m *Manager) encodeLocked(key string) json.RawMessage {
	var v any
	switch key {
	case KeyPauseBeforeSuspend:
		v = m.cur.pauseBeforeSuspend
	case KeyAutoPause:
		v = m.cur.autoPause
	case KeyOverlayPause:
		v = m.cur.overlayPause
	case KeyNoAutoPause:
		ids := slices.Sorted(maps.Keys(m.cur.noAutoPause))
		if ids == nil {
			ids = []uint32{}
		}
		v = ids
	}
	b, _ := json.Marshal(v)
	return b
}

// Save sets key to the JSON value raw and persists it.
func (m *Manager) Save(ctx context.Context, key string, raw json.RawMessage) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.mu.Lock()
	if err := m.applyLocked(key, raw); err != nil {
		m.mu.Unlock()
		return err
	}
	enc := m.encodeLocked(key)
	m.mu.Unlock()
	m.persist(ctx, key, enc)
	return nil
}

// SetBool is Save for the boolean settings.
func (m *Manager) SetBool(ctx context.Context, key string, v bool) error {
	if key == KeyNoAutoPause {
		return fmt.Errorf("%w: %s is not a boolean", ErrUnknownKey, key)
	}
	b, _ := json.Marshal(v)
	return m.Save(ctx, key, b)
}

// Apply stores every non-nil field of p.
func (m *Manager) Apply(ctx context.Context, p Patch) error {
	type kv struct {
		key string
		v   any
	}
	var updates []kv
	if p.PauseBeforeSuspend != nil {
		updates = append(updates, kv{KeyPauseBeforeSuspend, *p.PauseBeforeSuspend})
	}
	if p.AutoPause != nil {
		updates = append(updates, kv{KeyAutoPause, *p.AutoPause})
	}
	if p.OverlayPause != nil {
		updates = append(updates, kv{KeyOverlayPause, *p.OverlayPause})
	}
	if p.NoAutoPause != nil {
		ids := *p.NoAutoPause
		if ids == nil {
			ids = []uint32{}
		}
		updates = append(updates, kv{KeyNoAutoPause, ids})
	}
	for _, u := range updates {
		b, _ := json.Marshal(u.v)
		if err := m.Save(ctx, u.key, b); err != nil {
			return err
		}
	}
	return nil
}

// AddExclusion disables automatic focus pausing for appID.
func (m *Manager) AddExclusion(ctx context.Context, appID uint32) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.mu.Lock()
	m.cur.noAutoPause[appID] = true
	enc := m.encodeLocked(KeyNoAutoPause)
	m.mu.Unlock()
	m.persist(ctx, KeyNoAutoPause, enc)
}

// RemoveExclusion re-enables automatic focus pausing for appID.
func (m *Manager) RemoveExclusion(ctx context.Context, appID uint32) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.mu.Lock()
	delete(m.cur.noAutoPause, appID)
	enc := m.encodeLocked(KeyNoAutoPause)
	m.mu.Unlock()
	m.persist(ctx, KeyNoAutoPause, enc)
}

func (m *Manager) saveAll(ctx context.Context) {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.mu.RLock()
	encoded := make(map[string]json.RawMessage, len(Keys))
	for _, k := range Keys {
		encoded[k] = m.encodeLocked(k)
	}
	m.mu.RUnlock()
	for _, k := range Keys {
		m.persist(ctx, k, encoded[k])
	}
}

func (m *Manager) persist(ctx context.Context, key string, raw json.RawMessage) {
	if m.st == nil {
		return
	}
	if err := m.st.Put(ctx, key, raw); err != nil {
		m.log.Error("persist setting failed", "key", key, "error", err)
	}
}
