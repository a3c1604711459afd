// Package confirm runs the second, more expensive check on candidate
// findings. Browser-based confirmers borrow a session from the pool for the
// duration of one check; sessionless confirmers re-probe over HTTP.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/task"
)

// ErrNoPool is returned when a session-based confirmer has no pool.
var ErrNoPool = errors.New("confirm: confirmer requires a session pool")

// Candidate is a task whose probe verdict was Potential.
type Candidate struct {
	Task  task.ProbeTask  `json:"task"`
	URL   string          `json:"url"`
	Probe finding.Verdict `json:"probe"`
}

// Confirmer checks one candidate.
type Confirmer interface {
	Name() string

	// RequiresSession reports whether Confirm needs a browser session.
	RequiresSession() bool

	// Confirm returns the verdict. An error wrapping
	// browser.ErrSessionPoisoned tells the caller not to reuse s.
	Confirm(ctx context.Context, c Candidate, s browser.Session) (finding.Verdict, error)
}

// Executor runs a Confirmer, leasing sessions from a pool when needed.
type Executor struct {
	confirmer Confirmer
	pool      *browser.Pool
	logger    *slog.Logger
	timeout   time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSessionTimeout bounds the work done on one leased session. The clock
// starts once the lease is granted. It has no effect on sessionless
// confirmers, which are bounded by their own per-request timeouts.
func WithSessionTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// NewExecutor pairs a confirmer with its pool. pool may be nil for
// sessionless confirmers.
func NewExecutor(c Confirmer, pool *browser.Pool, logger *slog.Logger, opts ...ExecutorOption) (*Executor, error) {
	if c == nil {
		return nil, errors.New("confirm: nil confirmer")
	}
	if c.RequiresSession() && pool == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPool, c.Name())
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{confirmer: c, pool: pool, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Confirmer returns the wrapped confirmer.
func (e *Executor) Confirmer() Confirmer { return e.confirmer }

// Confirm resolves one candidate to a terminal verdict. It never returns
// Potential.
func (e *Executor) Confirm(ctx context.Context, c Candidate) finding.Verdict {
	var v finding.Verdict

	if !e.confirmer.RequiresSession() {
		v, _ = e.confirmer.Confirm(ctx, c, nil)
		return terminal(v)
	}

	err := e.pool.With(ctx, func(s browser.Session) error {
		sctx := ctx
		if e.timeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		var cerr error
		v, cerr = e.confirmer.Confirm(sctx, c, s)
		return cerr
	})
	if err != nil {
		if errors.Is(err, browser.ErrSessionPoisoned) {
			e.logger.Warn("confirmation session failed",
				slog.String("url", c.URL),
				slog.String("confirmer", e.confirmer.Name()),
				slog.String("error", err.Error()))
		} else {
			v = finding.Unconfirmable("lease: " + err.Error())
		}
	}
	return terminal(v)
}

func terminal(v finding.Verdict) finding.Verdict {
	if v.Status == finding.Potential {
		return finding.Unconfirmable("confirmer returned no decision")
	}
	return v
}

// poisoned wraps a session error so the pool discards the session.
func poisoned(err error) (finding.Verdict, error) {
	return finding.Unconfirmable(err.Error()), fmt.Errorf("%w: %w", browser.ErrSessionPoisoned, err)
}
