package detector

import (
	"fmt"
	"time"

	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/task"
)

// Timing flags a probe Potential when the response took at least Threshold.
// A single sample is never Vulnerable.
type Timing struct {
	Threshold time.Duration
}

// NewTiming returns a timing detector. Non-positive thresholds use the default.
func NewTiming(threshold time.Duration) *Timing {
	if threshold <= 0 {
		threshold = duration.TimingThreshold
	}
	return &Timing{Threshold: threshold}
}

func (d *Timing) Name() string { return "timing" }

func (d *Timing) Classify(_ task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}
	if d.Slow(out) {
		return finding.Suspect(fmt.Sprintf("responded in %s", out.Elapsed.Round(time.Millisecond)))
	}
	return finding.Clean()
}

// Slow reports whether a successful outcome crossed the threshold.
func (d *Timing) Slow(out probe.Outcome) bool {
	return out.Err == nil && out.Elapsed >= d.Threshold
}
