// Package history exports an append-only audit trail of orchestration
// decisions (pause, resume, suspend, wake, sticky, terminate) to external
// systems.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of decision.
type EventType string

const (
	EventPause     EventType = "pause"
	EventResume    EventType = "resume"
	EventSuspend   EventType = "suspend"
	EventWake      EventType = "wake"
	EventSticky    EventType = "sticky"
	EventUnsticky  EventType = "unsticky"
	EventTerminate EventType = "terminate"
)

// Event is one exported decision. Reason names the trigger: focus, overlay,
// manual, suspend, resume or cleanup.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	AppID      uint32    `json:"app_id"`
	PID        int       `json:"pid"`
	Reason     string    `json:"reason"`
	OK         bool      `json:"ok"`
}

// NewEvent stamps an event with a fresh id and the current UTC time.
func NewEvent(t EventType, appID uint32, pid int, reason string, ok bool) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		AppID:      appID,
		PID:        pid,
		Reason:     reason,
		OK:         ok,
	}
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
