//go:build !linux

package source

import (
	"context"
	"log/slog"
)

// Logind is only available on Linux.
type Logind struct{}

func NewLogind(Sink, *slog.Logger) *Logind { return &Logind{} }

func (l *Logind) Name() string { return "logind" }

func (l *Logind) Run(context.Context) error { return ErrUnsupported }
