// Package result aggregates verdicts from concurrent workers into a single
// scan result. The Aggregator is the only writer of scan counters; callers
// read immutable Snapshots.
package result

import (
	"slices"
	"sync"
	"time"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/task"
)

// State is how a scan ended.
type State string

const (
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Termination records how and why a scan stopped.
type Termination struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Snapshot is an immutable copy of the aggregated result.
type Snapshot struct {
	ScanID  string `json:"scan_id"`
	Variant string `json:"variant"`

	Scanned              int64 `json:"scanned"`
	Found                int64 `json:"found"`
	Confirmed            int64 `json:"confirmed"`
	Candidates           int64 `json:"candidates"`
	Unconfirmed          int64 `json:"unconfirmed"`
	Errors               int64 `json:"errors"`
	Skipped              int64 `json:"skipped"`
	ConfirmationFailures int64 `json:"confirmation_failures"`

	// Vulnerable is in completion order.
	Vulnerable []finding.Finding `json:"vulnerable"`

	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed_ns,format:nano"`
	Termination Termination   `json:"termination"`
}

// VulnerableURLs returns the concrete URLs of every vulnerable finding.
func (s Snapshot) VulnerableURLs() []string {
	out := make([]string, 0, len(s.Vulnerable))
	for _, f := range s.Vulnerable {
		out = append(out, f.URL)
	}
	return out
}

// Aborted reports whether the scan stopped early.
func (s Snapshot) Aborted() bool { return s.Termination.State == StateAborted }

// ProbeRecord is one finished probe.
type ProbeRecord struct {
	Task    task.ProbeTask
	URL     string
	Verdict finding.Verdict

	// Failed marks a transport error.
	Failed bool

	// Skipped marks a probe that was not sent (host over its error budget).
	Skipped bool
}

// Aggregator collects verdicts. All methods are safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	snap   Snapshot
	frozen bool
	now    func() time.Time
}

// NewAggregator starts an aggregator for one scan.
func NewAggregator(scanID, variant string, startedAt time.Time) *Aggregator {
	return &Aggregator{
		snap: Snapshot{ScanID: scanID, Variant: variant, StartedAt: startedAt},
		now:  time.Now,
	}
}

// Seed restores counters and findings from a previous run.
func (a *Aggregator) Seed(prev Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap.Scanned = prev.Scanned
	a.snap.Found = prev.Found
	a.snap.Confirmed = prev.Confirmed
	a.snap.Candidates = prev.Candidates
	a.snap.Unconfirmed = prev.Unconfirmed
	a.snap.Errors = prev.Errors
	a.snap.Skipped = prev.Skipped
	a.snap.ConfirmationFailures = prev.ConfirmationFailures
	a.snap.Vulnerable = slices.Clone(prev.Vulnerable)
}

// RecordProbe counts a probe as scanned and keeps it if Vulnerable. It
// returns false once the aggregator is frozen.
func (a *Aggregator) RecordProbe(r ProbeRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return false
	}

	a.snap.Scanned++
	if r.Failed {
		a.snap.Errors++
	}
	if r.Skipped {
		a.snap.Skipped++
	}
	switch r.Verdict.Status {
	case finding.Vulnerable:
		a.addFinding(r.Task, r.URL, r.Verdict, false)
	case finding.Potential:
		a.snap.Candidates++
	}
	return true
}

// RecordConfirmation stores the verdict of a confirmed candidate.
func (a *Aggregator) RecordConfirmation(t task.ProbeTask, url string, v finding.Verdict) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return false
	}

	switch v.Status {
	case finding.Vulnerable:
		a.snap.Confirmed++
		a.addFinding(t, url, v, true)
	case finding.ConfirmationFailed:
		a.snap.ConfirmationFailures++
	}
	return true
}

// RecordUnconfirmed resolves a candidate that never went through
// confirmation. With report set it is counted as vulnerable.
func (a *Aggregator) RecordUnconfirmed(t task.ProbeTask, url string, probe finding.Verdict, report bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return false
	}

	a.snap.Unconfirmed++
	if report {
		a.addFinding(t, url, probe, false)
	}
	return true
}

func (a *Aggregator) addFinding(t task.ProbeTask, url string, v finding.Verdict, confirmed bool) {
	a.snap.Found++
	a.snap.Vulnerable = append(a.snap.Vulnerable, finding.Finding{
		Task:      t,
		URL:       url,
		Verdict:   v,
		Confirmed: confirmed,
		FoundAt:   a.now(),
	})
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

// Freeze stops accepting records and returns the final snapshot. Later
// calls return the same snapshot with the first termination.
func (a *Aggregator) Freeze(term Termination) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.frozen {
		a.frozen = true
		a.snap.Termination = term
		a.snap.Elapsed = a.now().Sub(a.snap.StartedAt)
	}
	return a.copyLocked()
}

func (a *Aggregator) copyLocked() Snapshot {
	s := a.snap
	s.Vulnerable = slices.Clone(a.snap.Vulnerable)
	if s.Vulnerable == nil {
		s.Vulnerable = []finding.Finding{}
	}
	return s
}
