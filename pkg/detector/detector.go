// Package detector classifies probe outcomes. Every detector is a pure
// function of (task, outcome): no I/O and no shared mutable state, so one
// instance can serve all probe workers.
package detector

import (
	"errors"
	"fmt"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/task"
)

// ErrDetection is the reason attached when an outcome could not be
// evaluated (e.g. an undecodable body).
var ErrDetection = errors.New("detector: cannot evaluate response")

// Detector decides a verdict for one probe.
type Detector interface {
	Name() string
	Classify(t task.ProbeTask, out probe.Outcome) finding.Verdict
}

// Func adapts a function to the Detector interface.
type Func struct {
	Label string
	Fn    func(t task.ProbeTask, out probe.Outcome) finding.Verdict
}

func (f Func) Name() string { return f.Label }

func (f Func) Classify(t task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}
	return f.Fn(t, out)
}

// precheck turns failed and undecodable outcomes into NotVulnerable.
func precheck(out probe.Outcome) (finding.Verdict, bool) {
	if out.Err != nil {
		return finding.Failed(out.Err), true
	}
	if out.DecodeErr != nil {
		return finding.Failed(fmt.Errorf("%w: %w", ErrDetection, out.DecodeErr)), true
	}
	return finding.Verdict{}, false
}
