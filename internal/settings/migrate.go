package settings

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/loykin/pausr/internal/store"
)

// LegacyKey is the store key of the single-blob settings format.
const LegacyKey = "pause-games-settings"

// Migrate merges a legacy settings blob (from the store and, if configured,
// the legacy file) over the current settings, saves every key, and removes
// the blob. The blob is removed even when it cannot be parsed.
func (m *Manager) Migrate(ctx context.Context) error {
	var errs []error
	if m.st != nil {
		raw, err := m.st.Get(ctx, LegacyKey)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			errs = append(errs, err)
		default:
			m.mergeLegacy(ctx, raw, "store")
			if err := m.st.Delete(ctx, LegacyKey); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if m.legacyFile != "" {
		raw, err := os.ReadFile(m.legacyFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			errs = append(errs, err)
		default:
			m.mergeLegacy(ctx, raw, m.legacyFile)
			if err := os.Remove(m.legacyFile); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) mergeLegacy(ctx context.Context, raw []byte, from string) {
	if len(raw) == 0 {
		return
	}
	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		m.log.Warn("malformed legacy settings dropped", "from", from, "error", err)
		return
	}
	m.merge(blob)
	m.saveAll(ctx)
	m.log.Info("legacy settings migrated", "from", from)
}
