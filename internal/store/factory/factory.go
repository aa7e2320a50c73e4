package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/pausr/internal/store"
	pg "github.com/loykin/pausr/internal/store/postgres"
	sq "github.com/loykin/pausr/internal/store/sqlite"
)

// NewFromDSN selects a settings store based on DSN:
//   - "postgres://" or "postgresql://" -> PostgreSQL
//   - "sqlite://<path>" or a bare path  -> SQLite
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	switch {
	case d == "":
		return nil, errors.New("empty DSN")
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return pg.New(d)
	case strings.HasPrefix(ld, "sqlite://"):
		return sq.New(d[len("sqlite://"):])
	case strings.Contains(ld, "://"):
		return nil, fmt.Errorf("unsupported store scheme in %q", d)
	}
	return sq.New(d)
}

// Open builds the store for dsn and ensures its schema exists.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	s, err := NewFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return s, nil
}
