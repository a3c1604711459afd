package scanner

import (
	"errors"

	"github.com/lostsec/lostsec/pkg/browser"
)

// Sentinel errors returned by Scan alongside a non-nil snapshot.
// Callers should use errors.Is() to check for these.
var (
	// ErrCancelled means the scan context was cancelled. The snapshot
	// counts only tasks that actually ran.
	ErrCancelled = errors.New("scanner: scan cancelled")

	// ErrResourceAcquisition means the session pool could not be built.
	// No probe was sent.
	ErrResourceAcquisition = browser.ErrResourceAcquisition

	// ErrSink means the scan finished but the sink rejected the result.
	ErrSink = errors.New("scanner: sink write failed")

	// ErrAlreadyRun is returned when Scan is called twice on one Scanner.
	ErrAlreadyRun = errors.New("scanner: scan already started")

	// ErrInvalidConfig is returned by New.
	ErrInvalidConfig = errors.New("scanner: invalid configuration")

	// ErrUnknownVariant is returned by the registry for unregistered names.
	ErrUnknownVariant = errors.New("scanner: unknown variant")

	// ErrHostSkipped is the reason recorded for tasks not sent because
	// their host exceeded its transport error budget.
	ErrHostSkipped = errors.New("scanner: host skipped after repeated transport errors")
)
