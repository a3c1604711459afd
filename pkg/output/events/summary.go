package events

import "time"

// SummaryEvent is emitted exactly once when a scan ends, whether it
// completed or was aborted.
type SummaryEvent struct {
	BaseEvent
	Version     string        `json:"version"`
	Variant     string        `json:"variant"`
	State       string        `json:"state"`
	Reason      string        `json:"reason,omitempty"`
	Totals      StatsInfo     `json:"totals"`
	Unconfirmed int64         `json:"unconfirmed"`
	Vulnerable  []TaskInfo    `json:"vulnerable"`
	Timing      SummaryTiming `json:"timing"`
}

// SummaryTiming contains the scan duration.
type SummaryTiming struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns,format:nano"`
}
