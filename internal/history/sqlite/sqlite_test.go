package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/pausr/internal/history"
)

func TestSQLiteSink_SendAndRecent(t *testing.T) {
	s, err := New("sqlite://" + filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	events := []history.Event{
		{ID: "a", Type: history.EventPause, OccurredAt: base, AppID: 570, PID: 10, Reason: "focus", OK: true},
		{ID: "b", Type: history.EventResume, OccurredAt: base.Add(time.Second), AppID: 570, PID: 10, Reason: "focus", OK: true},
		{ID: "c", Type: history.EventPause, OccurredAt: base.Add(2 * time.Second), AppID: 730, PID: 20, Reason: "suspend", OK: false},
	}
	for _, e := range events {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.ID, err)
		}
	}

	got, err := s.Recent(ctx, 570, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[0].Type != history.EventResume {
		t.Fatalf("unexpected app history: %+v", got)
	}
	all, err := s.Recent(ctx, 0, 0)
	if err != nil || len(all) != 3 || all[0].ID != "c" || all[0].OK {
		t.Fatalf("unexpected full history: %+v %v", all, err)
	}

	// ids are unique
	if err := s.Send(ctx, events[0]); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New("sqlite://"); err == nil {
		t.Fatalf("expected error")
	}
}
