// Package events defines the event types emitted during a scan.
// All events are designed for JSON serialization.
//
// Every event embeds BaseEvent, which carries the type, the timestamp and
// the scan ID.
package events

import "time"

// EventType represents the type of output event.
type EventType string

const (
	// EventTypeStart indicates a scan has started.
	EventTypeStart EventType = "start"
	// EventTypeResult indicates a non-clean verdict for one task.
	EventTypeResult EventType = "result"
	// EventTypeProgress indicates a batch has completed.
	EventTypeProgress EventType = "progress"
	// EventTypeSummary indicates the scan has ended.
	EventTypeSummary EventType = "summary"
)

// Phase names the pipeline stage that produced an event.
type Phase string

const (
	PhaseProbe   Phase = "probe"
	PhaseConfirm Phase = "confirm"
)

// Event is the base interface for all events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent contains common fields for all events.
// It is designed to be embedded in specific event types.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// NewBase returns a BaseEvent stamped with the current time.
func NewBase(t EventType, scanID string) BaseEvent {
	return BaseEvent{Type: t, Time: time.Now(), Scan: scanID}
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the unique identifier for the scan that produced this event.
func (e BaseEvent) ScanID() string { return e.Scan }
