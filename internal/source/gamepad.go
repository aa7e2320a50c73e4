package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xcafed00d/joystick"

	"github.com/loykin/pausr/internal/host"
)

// Opener opens joystick device n.
type Opener func(n int) (joystick.Joystick, error)

// Gamepad reads a joystick and submits a KeyEvent for every new button
// press. The guide button maps to key code 0; button i otherwise maps to
// code i+1 so that any other press cancels a pending guide press.
type Gamepad struct {
	sink     Sink
	device   int
	guide    int
	interval time.Duration
	open     Opener
	log      *slog.Logger
}

// NewGamepad returns a gamepad source. A negative device probes 0..3.
func NewGamepad(sink Sink, device, guide int, interval time.Duration, log *slog.Logger) *Gamepad {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gamepad{
		sink:     sink,
		device:   device,
		guide:    guide,
		interval: interval,
		open:     joystick.Open,
		log:      log.With("source", "gamepad"),
	}
}

// WithOpener replaces joystick.Open.
func (g *Gamepad) WithOpener(o Opener) *Gamepad {
	g.open = o
	return g
}

func (g *Gamepad) Name() string { return "gamepad" }

func (g *Gamepad) Run(ctx context.Context) error {
	js, idx, err := g.openDevice()
	if err != nil {
		return err
	}
	defer js.Close()
	g.log.Info("gamepad opened", "device", idx, "name", js.Name(), "buttons", js.ButtonCount())

	t := time.NewTicker(g.interval)
	defer t.Stop()
	var last uint32
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		st, err := js.Read()
		if err != nil {
			continue
		}
		g.dispatch(st.Buttons &^ last)
		last = st.Buttons
	}
}

func (g *Gamepad) openDevice() (joystick.Joystick, int, error) {
	ids := []int{g.device}
	if g.device < 0 {
		ids = []int{0, 1, 2, 3}
	}
	var lastErr error
	for _, i := range ids {
		js, err := g.open(i)
		if err == nil {
			return js, i, nil
		}
		lastErr = err
	}
	return nil, -1, fmt.Errorf("%w: no joystick found: %v", ErrUnsupported, lastErr)
}

// dispatch submits one key event per newly pressed button, lowest first.
func (g *Gamepad) dispatch(pressed uint32) {
	for b := 0; b < 32 && pressed != 0; b++ {
		if pressed&(1<<b) == 0 {
			continue
		}
		pressed &^= 1 << b
		code := b + 1
		if b == g.guide {
			code = 0
		}
		if err := g.sink.Submit(host.Key(code)); err != nil {
			g.log.Warn("key event rejected", "button", b, "error", err)
		}
	}
}
