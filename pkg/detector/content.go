package detector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/regexcache"
	"github.com/lostsec/lostsec/pkg/task"
)

// Substring flags a probe Vulnerable when the body contains any marker.
type Substring struct {
	Markers []string
}

// NewSubstring returns a marker detector. Empty markers are ignored.
func NewSubstring(markers ...string) (*Substring, error) {
	var kept []string
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("detector: substring detector needs at least one marker")
	}
	return &Substring{Markers: kept}, nil
}

func (d *Substring) Name() string { return "substring" }

func (d *Substring) Classify(_ task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}
	for _, m := range d.Markers {
		if strings.Contains(out.Body, m) {
			return finding.Confirmed(m)
		}
	}
	return finding.Clean()
}

// Regex flags a probe Vulnerable when the body matches any pattern.
type Regex struct {
	patterns []*regexp.Regexp
}

// NewRegex compiles patterns through the shared cache.
func NewRegex(patterns ...string) (*Regex, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("detector: regex detector needs at least one pattern")
	}
	res, err := regexcache.Compile(patterns...)
	if err != nil {
		return nil, err
	}
	return &Regex{patterns: res}, nil
}

func (d *Regex) Name() string { return "regex" }

func (d *Regex) Classify(_ task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}
	if m, ok := regexcache.FirstMatch(d.patterns, out.Body); ok {
		return finding.Confirmed(m)
	}
	return finding.Clean()
}

// Reflection flags a probe Potential when the raw payload comes back
// verbatim in the body. Reflection alone never proves execution.
type Reflection struct{}

func (Reflection) Name() string { return "reflection" }

func (Reflection) Classify(t task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}
	if t.Payload != "" && strings.Contains(out.Body, t.Payload) {
		return finding.Suspect("payload reflected")
	}
	return finding.Clean()
}
