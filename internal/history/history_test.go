package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSink struct {
	mu     sync.Mutex
	got    []Event
	fail   bool
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("sink down")
	}
	m.got = append(m.got, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memSink) events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.got...)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventPause, 570, 1234, "focus", true)
	if e.ID == "" || e.OccurredAt.IsZero() || e.OccurredAt.Location() != time.UTC {
		t.Fatalf("event not stamped: %+v", e)
	}
	if e2 := NewEvent(EventPause, 570, 1234, "focus", true); e2.ID == e.ID {
		t.Fatalf("ids must be unique")
	}
}

func TestRecorder_FanOut(t *testing.T) {
	a, b := &memSink{}, &memSink{fail: true}
	c := &memSink{}
	r := NewRecorder(nil, a, b, c)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	r.Record(NewEvent(EventPause, 1, 10, "focus", true))
	r.Record(NewEvent(EventResume, 2, 20, "manual", true))

	deadline := time.Now().Add(2 * time.Second)
	for len(c.events()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	r.Wait()

	if len(a.events()) != 2 || len(c.events()) != 2 {
		t.Fatalf("a failing sink must not block others: a=%d c=%d", len(a.events()), len(c.events()))
	}
	if a.events()[0].Type != EventPause || a.events()[1].AppID != 2 {
		t.Fatalf("order lost: %+v", a.events())
	}
	if !a.closed || !c.closed {
		t.Fatalf("sinks must be closed on shutdown")
	}
}

func TestRecorder_NoSinks(t *testing.T) {
	var nilRec *Recorder
	nilRec.Record(Event{}) // must not panic
	r := NewRecorder(nil)
	r.Record(Event{})
	if len(r.queue) != 0 {
		t.Fatalf("events must not queue without sinks")
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	s := &memSink{}
	r := NewRecorder(nil, s)
	for i := 0; i < cap(r.queue)+10; i++ {
		r.Record(Event{AppID: uint32(i)})
	}
	if len(r.queue) != cap(r.queue) {
		t.Fatalf("queue length %d", len(r.queue))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	if len(s.events()) != cap(r.queue) {
		t.Fatalf("drain on shutdown delivered %d", len(s.events()))
	}
}
