package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Recorder fans events out to sinks from a single background goroutine so
// callers never block on slow exporters. Events are dropped when the queue
// is full.
type Recorder struct {
	sinks   []Sink
	log     *slog.Logger
	queue   chan Event
	timeout time.Duration

	once sync.Once
	done chan struct{}
}

// NewRecorder returns a Recorder; call Run to start delivering.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		sinks:   sinks,
		log:     log.With("component", "history"),
		queue:   make(chan Event, 256),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Record enqueues e. It is a no-op on a nil Recorder or without sinks.
func (r *Recorder) Record(e Event) {
	if r == nil || len(r.sinks) == 0 {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("history queue full, event dropped", "type", e.Type, "app_id", e.AppID)
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// left and closes the sinks.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.deliver(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.deliver(e)
				default:
					if err := r.Close(); err != nil {
						r.log.Warn("closing sinks", "error", err)
					}
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() { <-r.done }

func (r *Recorder) deliver(e Event) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := s.Send(ctx, e); err != nil {
			r.log.Warn("history sink failed", "type", e.Type, "app_id", e.AppID, "error", err)
		}
		cancel()
	}
}

// Close closes every sink that implements io.Closer. It is idempotent.
func (r *Recorder) Close() error {
	var errs []error
	r.once.Do(func() {
		for _, s := range r.sinks {
			if c, ok := s.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	})
	return errors.Join(errs...)
}
