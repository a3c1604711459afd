package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBaseEventImplementsEvent(t *testing.T) {
	now := time.Now()
	base := BaseEvent{Type: EventTypeResult, Time: now, Scan: "scan-123"}

	var e Event = base
	assert.Equal(t, EventTypeResult, e.EventType())
	assert.Equal(t, "scan-123", e.ScanID())
	assert.True(t, e.Timestamp().Equal(now))
}

func TestEmbeddedEventsSatisfyInterface(t *testing.T) {
	for _, e := range []Event{
		&StartEvent{BaseEvent: NewBase(EventTypeStart, "s")},
		&ResultEvent{BaseEvent: NewBase(EventTypeResult, "s")},
		&ProgressEvent{BaseEvent: NewBase(EventTypeProgress, "s")},
		&SummaryEvent{BaseEvent: NewBase(EventTypeSummary, "s")},
	} {
		assert.Equal(t, "s", e.ScanID())
		assert.False(t, e.Timestamp().IsZero())
	}
}

func TestEventTypeConstants(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeStart, "start"},
		{EventTypeResult, "result"},
		{EventTypeProgress, "progress"},
		{EventTypeSummary, "summary"},
	}
	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, string(tc.eventType))
		})
	}
}
