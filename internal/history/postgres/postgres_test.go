package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/loykin/pausr/internal/history"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Skipf("Failed to get host info: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Skipf("Failed to get mapped port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	waitForPostgres(t, dsn)
	return dsn
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
		}
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresSink(t *testing.T) {
	dsn := startPostgres(t)
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := history.NewEvent(history.EventPause, 570, 100+i, "focus", true)
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := s.Send(ctx, history.NewEvent(history.EventResume, 570, 100, "manual", true)); err != nil {
		t.Fatalf("send resume: %v", err)
	}
	n, err := s.Count(ctx, 570, history.EventPause)
	if err != nil || n != 3 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error")
	}
}
