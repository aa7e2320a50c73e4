// Package detector maps between launcher app ids and the pid of the process
// that controls the app. A zero result means "not found".
package detector

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no mapping exists.
var ErrNotFound = errors.New("no matching process")

// Resolver is a strategy for mapping app ids to controlling pids and back.
// It must be safe for concurrent use.
type Resolver interface {
	// PIDFromAppID returns the controlling pid of appID.
	PIDFromAppID(ctx context.Context, appID uint32) (int, error)
	// AppIDFromPID returns the app id owning pid.
	AppIDFromPID(ctx context.Context, pid int) (uint32, error)
	// Describe returns a human-readable description of the method.
	Describe() string
}

// Chain tries each resolver in order and returns the first non-zero answer.
type Chain []Resolver

func (c Chain) PIDFromAppID(ctx context.Context, appID uint32) (int, error) {
	var errs []error
	for _, r := range c {
		pid, err := r.PIDFromAppID(ctx, appID)
		if err == nil && pid > 0 {
			return pid, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return 0, notFound(errs)
}

func (c Chain) AppIDFromPID(ctx context.Context, pid int) (uint32, error) {
	var errs []error
	for _, r := range c {
		id, err := r.AppIDFromPID(ctx, pid)
		if err == nil && id > 0 {
			return id, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return 0, notFound(errs)
}

func (c Chain) Describe() string {
	parts := make([]string, 0, len(c))
	for _, r := range c {
		parts = append(parts, r.Describe())
	}
	return "chain:[" + strings.Join(parts, ",") + "]"
}

func notFound(errs []error) error {
	if len(errs) == 0 {
		return ErrNotFound
	}
	return errors.Join(append([]error{ErrNotFound}, errs...)...)
}

// New builds the resolver chain used by the daemon: pid files and the
// lookup command when configured, then the reaper command-line scan.
func New(reaperPattern, pidDir, command string) Chain {
	var c Chain
	if pidDir != "" {
		c = append(c, PIDFileResolver{Dir: pidDir})
	}
	if command != "" {
		c = append(c, CommandResolver{Command: command})
	}
	return append(c, ReaperResolver{Pattern: reaperPattern})
}
