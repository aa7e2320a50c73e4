// Package source contains the built-in host event sources used when no
// launcher pushes events over HTTP: an X11 focus poller, a logind sleep
// watcher and a gamepad guide-button reader.
package source

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrUnsupported is returned by sources that cannot run on this platform.
var ErrUnsupported = errors.New("event source not supported on this platform")

// Sink receives host events. *engine.Engine implements it.
type Sink interface {
	Submit(ev any) error
	SubmitWait(ctx context.Context, ev any) error
}

// Source produces host events until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// RunAll runs every source until ctx is cancelled. A source that fails or
// is unsupported is logged and does not stop the others.
func RunAll(ctx context.Context, log *slog.Logger, sources ...Source) {
	if log == nil {
		log = slog.Default()
	}
	var g errgroup.Group
	for _, s := range sources {
		g.Go(func() error {
			log.Info("event source started", "source", s.Name())
			err := s.Run(ctx)
			switch {
			case err == nil, errors.Is(err, context.Canceled):
				log.Info("event source stopped", "source", s.Name())
			case errors.Is(err, ErrUnsupported):
				log.Warn("event source unavailable", "source", s.Name(), "error", err)
			default:
				log.Error("event source failed", "source", s.Name(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
