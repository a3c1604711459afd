// Package browser provides the pooled, stateful browser sessions used to
// confirm candidate findings, and the pool that leases them out.
package browser

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for session and pool failure modes.
// Callers should use errors.Is() to check for these.
var (
	// ErrResourceAcquisition indicates the pool could not construct its
	// sessions. It is fatal to a scan.
	ErrResourceAcquisition = errors.New("browser: cannot acquire sessions")

	// ErrSessionPoisoned marks a session that must not be reused.
	ErrSessionPoisoned = errors.New("browser: session poisoned")

	// ErrPoolClosed is returned by Lease after Close has begun.
	ErrPoolClosed = errors.New("browser: pool closed")

	// ErrPoolExhausted is returned by Lease when every session has been
	// discarded and none could be replaced.
	ErrPoolExhausted = errors.New("browser: no live sessions")
)

// Observation is what a session saw while visiting a URL.
type Observation struct {
	// FinalURL is the page location after navigation and the observation
	// window, following any redirects.
	FinalURL string

	// DialogOpened is true when a JavaScript dialog fired.
	DialogOpened  bool
	DialogType    string
	DialogMessage string
}

// Session is a stateful browser context. A session is used by at most one
// goroutine at a time; the Pool guarantees that.
type Session interface {
	ID() string

	// Visit loads url and watches it for up to observe. Any error means the
	// session may be in an unknown state.
	Visit(ctx context.Context, url string, observe time.Duration) (Observation, error)

	// Close releases the session's resources.
	Close() error
}

// Factory constructs one session. ctx bounds construction only.
type Factory func(ctx context.Context) (Session, error)
