package events

import "time"

// ResultEvent represents one verdict that was not a plain NotVulnerable:
// a probe-phase Vulnerable or Potential, or any confirmation outcome.
type ResultEvent struct {
	BaseEvent
	Phase  Phase      `json:"phase"`
	Task   TaskInfo   `json:"task"`
	Result ResultInfo `json:"result"`
}

// TaskInfo identifies the probed task.
type TaskInfo struct {
	Seq     uint64 `json:"seq"`
	Target  string `json:"target"`
	Payload string `json:"payload"`
	Point   string `json:"injection_point"`
	URL     string `json:"url"`
}

// ResultInfo contains the verdict.
type ResultInfo struct {
	Status     string        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Evidence   string        `json:"evidence,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ns,omitempty,format:nano"`
}
