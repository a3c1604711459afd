// Package defaults provides canonical default values for the scanner.
// This is the SINGLE SOURCE OF TRUTH for all runtime configuration defaults.
//
// Usage:
//
//	cfg.Concurrency = defaults.ConcurrencyProbe
//	cfg.PoolSize = defaults.PoolSize
//
// DO NOT use hardcoded values like `Concurrency: 50` anywhere.
// Instead, reference the appropriate constant from this package.
package defaults

import "fmt"

// Version is the current lostsec version
const Version = "1.3.0"

// ToolName is the product name used in reports and telemetry.
const ToolName = "lostsec"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// ConcurrencyProbe is the default number of concurrent probes (50)
	ConcurrencyProbe = 50

	// ConcurrencyMin is the floor applied to invalid settings (1)
	ConcurrencyMin = 1

	// BatchMultiplier scales concurrency into the batch size. Each batch of
	// Concurrency*BatchMultiplier tasks is awaited in full before the next.
	BatchMultiplier = 10

	// PoolSize is the default number of pooled browser sessions (5)
	PoolSize = 5
)

// ============================================================================
// CONFIRMATION SETTINGS
// ============================================================================

const (
	// ResampleCount is how many times a timing candidate is re-probed (2)
	ResampleCount = 2

	// HostMaxErrors is the transport error count after which a host's
	// remaining tasks are skipped (0 disables skipping)
	HostMaxErrors = 0
)

// ============================================================================
// BODY LIMITS
// ============================================================================

const (
	// BodyPrefix is how much of a response body the detector may see (512KB)
	BodyPrefix = 512 * 1024
)

// ============================================================================
// DETECTION DEFAULTS
// ============================================================================

const (
	// LFIMarker is the default file-inclusion marker (passwd root entry)
	LFIMarker = "root:x:0:"

	// RedirectTarget is the default open-redirect landing page
	RedirectTarget = "https://www.google.com/"
)

// UserAgents is the rotation set for probe requests. One entry is picked at
// random per request.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Version/14.1.2 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edge/91.0.864.70",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Firefox/89.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:91.0) Gecko/20100101 Firefox/91.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:91.0) Gecko/20100101 Firefox/91.0",
	"Mozilla/5.0 (Linux; Android 10; SM-G973F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.77 Mobile Safari/537.36",
}

// ToolUserAgent identifies the tool itself (used by telemetry, never probes).
func ToolUserAgent() string {
	return fmt.Sprintf("%s/%s", ToolName, Version)
}
