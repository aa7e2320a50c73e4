package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/pausr/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a SQLite history sink.
// DSN format: "sqlite:///path/to/file.db", "sqlite://:memory:", a bare path or ":memory:".
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pause_history(
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			app_id INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			reason TEXT NOT NULL,
			ok BOOLEAN NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pause_history_app ON pause_history(app_id, occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pause_history(id, occurred_at, type, app_id, pid, reason, ok)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.OccurredAt.UTC(), string(e.Type), e.AppID, e.PID, e.Reason, e.OK)
	return err
}

// Recent returns up to limit events for appID (all apps when 0), newest first.
func (s *Sink) Recent(ctx context.Context, appID uint32, limit int) ([]history.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, type, app_id, pid, reason, ok
		FROM pause_history
		WHERE ? = 0 OR app_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?;`, appID, appID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var e history.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &typ, &e.AppID, &e.PID, &e.Reason, &e.OK); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
