package events

import "time"

// ProgressEvent is emitted after every completed batch.
type ProgressEvent struct {
	BaseEvent
	Progress ProgressInfo `json:"progress"`
	Stats    StatsInfo    `json:"stats"`
	Timing   TimingInfo   `json:"timing"`
}

// ProgressInfo contains progress metrics for the current scan phase.
type ProgressInfo struct {
	Phase     Phase `json:"phase"`
	Batch     int64 `json:"batch"`
	BatchSize int   `json:"batch_size"`
	Completed int64 `json:"completed"`
	Skipped   int64 `json:"skipped"`
}

// StatsInfo contains cumulative statistics for the scan.
type StatsInfo struct {
	Scanned              int64 `json:"scanned"`
	Found                int64 `json:"found"`
	Confirmed            int64 `json:"confirmed"`
	Candidates           int64 `json:"candidates"`
	Errors               int64 `json:"errors"`
	Skipped              int64 `json:"skipped"`
	ConfirmationFailures int64 `json:"confirmation_failures"`
}

// TimingInfo contains timing metrics for the scan.
type TimingInfo struct {
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed_ns,format:nano"`
	BatchDuration  time.Duration `json:"batch_duration_ns,format:nano"`
	RequestsPerSec float64       `json:"requests_per_sec"`
}
