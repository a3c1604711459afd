package events

// StartEvent is emitted once when the probe phase begins.
type StartEvent struct {
	BaseEvent
	Variant string     `json:"variant"`
	Config  ScanConfig `json:"config"`

	// Resumed is the number of tasks skipped because a checkpoint covered them.
	Resumed int64 `json:"resumed,omitempty"`
}

// ScanConfig contains the scan configuration settings.
type ScanConfig struct {
	Concurrency  int     `json:"concurrency"`
	BatchSize    int     `json:"batch_size"`
	PoolSize     int     `json:"pool_size"`
	TimeoutSec   int     `json:"timeout_sec"`
	Mode         string  `json:"mode"`
	Detector     string  `json:"detector"`
	Confirmer    string  `json:"confirmer,omitempty"`
	Unconfirmed  string  `json:"unconfirmed_policy"`
	RateLimitRPS float64 `json:"rate_limit_rps,omitempty"`
}
