package confirm

import (
	"context"
	"fmt"
	"time"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/detector"
	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
)

// Resample confirms a timing candidate by repeat-and-compare: the target
// without the payload must answer under the threshold, and every one of
// Samples repeated probes must still cross it.
type Resample struct {
	Exec    *probe.Executor
	Timing  *detector.Timing
	Samples int
}

func (Resample) Name() string          { return "resample" }
func (Resample) RequiresSession() bool { return false }

func (r Resample) Confirm(ctx context.Context, c Candidate, _ browser.Session) (finding.Verdict, error) {
	samples := r.Samples
	if samples <= 0 {
		samples = defaults.ResampleCount
	}

	baseline := r.Exec.Fetch(ctx, c.Task.Target)
	if baseline.Failed() {
		return finding.Unconfirmable("baseline request failed: " + baseline.Err.Error()), nil
	}
	if r.Timing.Slow(baseline) {
		return finding.Verdict{
			Status: finding.NotVulnerable,
			Reason: fmt.Sprintf("target is slow without payload (%s)", baseline.Elapsed.Round(time.Millisecond)),
		}, nil
	}

	var slowest time.Duration
	for i := 0; i < samples; i++ {
		out := r.Exec.Execute(ctx, c.Task)
		if !r.Timing.Slow(out) {
			return finding.Clean(), nil
		}
		slowest = max(slowest, out.Elapsed)
	}
	return finding.Confirmed(fmt.Sprintf("%d/%d samples >= %s (baseline %s, slowest %s)",
		samples, samples, r.Timing.Threshold,
		baseline.Elapsed.Round(time.Millisecond), slowest.Round(time.Millisecond))), nil
}
