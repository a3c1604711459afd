package confirm

import (
	"context"
	"strings"
	"time"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/detector"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/finding"
)

// Dialog confirms script execution: the candidate URL must open a
// JavaScript dialog within Observe.
type Dialog struct {
	Observe time.Duration
}

func (Dialog) Name() string          { return "dialog" }
func (Dialog) RequiresSession() bool { return true }

func (d Dialog) Confirm(ctx context.Context, c Candidate, s browser.Session) (finding.Verdict, error) {
	obs, err := s.Visit(ctx, c.URL, observeOrDefault(d.Observe))
	if err != nil {
		return poisoned(err)
	}
	if obs.DialogOpened {
		return finding.Confirmed(strings.TrimSpace(obs.DialogType + " dialog: " + obs.DialogMessage)), nil
	}
	return finding.Clean(), nil
}

// Navigation confirms an open redirect: after loading the candidate URL the
// browser must have landed on the redirect target.
type Navigation struct {
	Target  *detector.Redirect
	Observe time.Duration
}

func (Navigation) Name() string          { return "navigation" }
func (Navigation) RequiresSession() bool { return true }

func (n Navigation) Confirm(ctx context.Context, c Candidate, s browser.Session) (finding.Verdict, error) {
	obs, err := s.Visit(ctx, c.URL, observeOrDefault(n.Observe))
	if err != nil {
		return poisoned(err)
	}
	if n.Target.MatchesTarget(obs.FinalURL) {
		return finding.Confirmed("landed on " + obs.FinalURL), nil
	}
	return finding.Clean(), nil
}

func observeOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return duration.BrowserObserve
	}
	return d
}
