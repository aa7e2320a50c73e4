package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/pausr/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

var _ store.Store = (*DB)(nil)

func (p *DB) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings(
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`)
	return err
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var v []byte
	err := p.db.QueryRowContext(ctx, `SELECT value::text FROM settings WHERE key=$1;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(v), nil
}

func (p *DB) Put(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return errors.New("value is not valid JSON")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings(key, value, updated_at) VALUES($1, $2::jsonb, $3)
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at;`,
		key, string(value), time.Now().UTC())
	return err
}

func (p *DB) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM settings WHERE key=$1;`, key)
	return err
}

func (p *DB) All(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value::text FROM settings;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = json.RawMessage(v)
	}
	return out, rows.Err()
}
