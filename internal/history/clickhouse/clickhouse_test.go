package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/pausr/internal/history"
)

func setupClickHouse(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	c, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return host + ":" + port.Port()
}

func TestClickHouseSink(t *testing.T) {
	ctx := context.Background()
	addr := setupClickHouse(ctx, t)

	sink, err := New(Options{Addr: addr, Table: "pause_history_test"})
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	if err := sink.EnsureTable(ctx); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	events := []history.Event{
		history.NewEvent(history.EventPause, 570, 1000, "focus", true),
		history.NewEvent(history.EventResume, 570, 1000, "focus", true),
		history.NewEvent(history.EventSuspend, 0, 0, "suspend", true),
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send event: %v", err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, "SELECT count() FROM pause_history_test WHERE app_id = 570")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows for app 570, got %d", count)
	}
}

func TestNew_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	if _, err := New(Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for unreachable server")
	}
}
