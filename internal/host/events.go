// Package host defines the input contracts between a launcher host and the
// orchestration engine, and keeps the host's list of running apps.
package host

import (
	"errors"
	"fmt"
)

// OverlayAppID is the reserved id the host reports when its own overlay
// (not a game) has focus.
const OverlayAppID uint32 = 769

var ErrInvalidEvent = errors.New("invalid host event")

// FocusChange reports that a window of an app gained focus.
type FocusChange struct {
	AppID    uint32 `json:"app_id"`
	PID      int    `json:"pid"`
	ExeName  string `json:"exe_name,omitempty"`
	WindowID uint64 `json:"window_id,omitempty"`
}

func (e FocusChange) Validate() error {
	if e.PID < 0 {
		return fmt.Errorf("%w: negative pid %d", ErrInvalidEvent, e.PID)
	}
	return nil
}

// KeyEvent is a controller or system key press. Code 0 is the guide button.
type KeyEvent struct {
	Key             *int   `json:"key"`
	ControllerIndex int    `json:"controller_index,omitempty"`
	AppID           uint32 `json:"app_id,omitempty"`
}

// Code returns the key code; Validate guarantees it is set.
func (e KeyEvent) Code() int {
	if e.Key == nil {
		return -1
	}
	return *e.Key
}

func (e KeyEvent) Validate() error {
	if e.Key == nil {
		return fmt.Errorf("%w: key is required", ErrInvalidEvent)
	}
	return nil
}

// Key builds a KeyEvent for code.
func Key(code int) KeyEvent { return KeyEvent{Key: &code} }

// GameAction is a launcher action status update (launch progress etc).
type GameAction struct {
	AppID  uint32 `json:"app_id"`
	Action string `json:"action"`
	Status string `json:"status"`
}

func (e GameAction) Validate() error {
	if e.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidEvent)
	}
	return nil
}

// Lifetime reports an app instance starting or exiting.
type Lifetime struct {
	AppID      uint32 `json:"app_id"`
	InstanceID int    `json:"instance_id,omitempty"`
	Running    bool   `json:"running"`
}

func (e Lifetime) Validate() error { return nil }

// SuspendRequest is delivered before the system suspends.
type SuspendRequest struct{}

// ResumeFromSuspend is delivered after the system wakes.
type ResumeFromSuspend struct{}

// RunningAppsUpdate replaces the host's running list.
type RunningAppsUpdate struct {
	Apps []App `json:"apps"`
}

func (e RunningAppsUpdate) Validate() error {
	seen := make(map[uint32]bool, len(e.Apps))
	for _, a := range e.Apps {
		if a.AppID == 0 {
			return fmt.Errorf("%w: app_id is required", ErrInvalidEvent)
		}
		if seen[a.AppID] {
			return fmt.Errorf("%w: duplicate app_id %d", ErrInvalidEvent, a.AppID)
		}
		seen[a.AppID] = true
	}
	return nil
}
