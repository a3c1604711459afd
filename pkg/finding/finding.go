// Package finding defines verdicts and the findings reported for them.
package finding

import (
	"fmt"
	"strings"
	"time"

	"github.com/lostsec/lostsec/pkg/task"
)

// Status is the outcome class of a verdict.
type Status int

const (
	// NotVulnerable means no evidence was found, or the probe failed.
	NotVulnerable Status = iota
	// Vulnerable means the evidence is conclusive.
	Vulnerable
	// Potential means the probe is suggestive and needs confirmation.
	Potential
	// ConfirmationFailed means confirmation could not run to a conclusion.
	ConfirmationFailed
)

var statusNames = map[Status]string{
	NotVulnerable:      "not_vulnerable",
	Vulnerable:         "vulnerable",
	Potential:          "potential",
	ConfirmationFailed: "confirmation_failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("finding: unknown status %q", name)
}

// Verdict is the classification of one probe or confirmation.
type Verdict struct {
	Status Status `json:"status"`

	// Reason explains NotVulnerable-by-error and ConfirmationFailed verdicts.
	Reason string `json:"reason,omitempty"`

	// Evidence is the matched marker, dialog text, final URL or timing.
	Evidence string `json:"evidence,omitempty"`
}

// Clean is the zero-evidence NotVulnerable verdict.
func Clean() Verdict { return Verdict{Status: NotVulnerable} }

// Failed returns a NotVulnerable verdict carrying the error as reason.
func Failed(err error) Verdict {
	return Verdict{Status: NotVulnerable, Reason: err.Error()}
}

// Confirmed returns a Vulnerable verdict with evidence.
func Confirmed(evidence string) Verdict {
	return Verdict{Status: Vulnerable, Evidence: evidence}
}

// Suspect returns a Potential verdict with evidence.
func Suspect(evidence string) Verdict {
	return Verdict{Status: Potential, Evidence: evidence}
}

// Unconfirmable returns a ConfirmationFailed verdict.
func Unconfirmable(reason string) Verdict {
	return Verdict{Status: ConfirmationFailed, Reason: reason}
}

// Terminal reports whether the verdict needs no further processing.
func (v Verdict) Terminal() bool {
	return v.Status != Potential
}

func (v Verdict) String() string {
	switch {
	case v.Reason != "":
		return v.Status.String() + " (" + v.Reason + ")"
	case v.Evidence != "":
		return v.Status.String() + ": " + v.Evidence
	}
	return v.Status.String()
}

// Finding is a vulnerable task as reported to sinks and event streams.
type Finding struct {
	Task      task.ProbeTask `json:"task"`
	URL       string         `json:"url"`
	Verdict   Verdict        `json:"verdict"`
	Confirmed bool           `json:"confirmed"`
	FoundAt   time.Time      `json:"found_at"`
}
