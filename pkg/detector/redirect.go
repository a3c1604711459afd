package detector

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/task"
)

// Redirect detects open redirects. A 3xx whose Location carries the payload
// or points at Target is Vulnerable. A 2xx page that mentions Target may
// redirect client-side and is Potential.
type Redirect struct {
	// Target is the landing URL an exploited redirect reaches.
	Target string

	targetHost string
}

// NewRedirect returns a redirect detector for target.
func NewRedirect(target string) (*Redirect, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("detector: invalid redirect target %q", target)
	}
	return &Redirect{Target: target, targetHost: strings.ToLower(u.Hostname())}, nil
}

func (d *Redirect) Name() string { return "redirect" }

func (d *Redirect) Classify(t task.ProbeTask, out probe.Outcome) finding.Verdict {
	if v, done := precheck(out); done {
		return v
	}

	if out.StatusCode >= 300 && out.StatusCode < 400 && out.Location != "" {
		if t.Payload != "" && strings.Contains(out.Location, t.Payload) {
			return finding.Confirmed("Location: " + out.Location)
		}
		if d.MatchesTarget(out.Location) {
			return finding.Confirmed("Location: " + out.Location)
		}
		return finding.Clean()
	}

	if out.StatusCode >= 200 && out.StatusCode < 300 && d.targetHost != "" &&
		strings.Contains(strings.ToLower(out.Body), d.targetHost) {
		return finding.Suspect("target referenced in page")
	}
	return finding.Clean()
}

// MatchesTarget reports whether location lands on the target: same URL
// prefix, or same host.
func (d *Redirect) MatchesTarget(location string) bool {
	if location == "" {
		return false
	}
	if strings.HasPrefix(location, d.Target) {
		return true
	}
	if strings.HasPrefix(location, "//") {
		location = "http:" + location
	}
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Hostname(), d.targetHost)
}
