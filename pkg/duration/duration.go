// Package duration provides canonical time constants for the scanner.
// This is the SINGLE SOURCE OF TRUTH for all time-based configuration.
//
// Usage:
//
//	exec := probe.NewExecutor(probe.Config{Timeout: duration.ProbeTimeout})
//	if out.Elapsed >= duration.TimingThreshold {
//
// DO NOT use hardcoded time.Duration values like `10 * time.Second` anywhere.
// Instead, reference the appropriate constant from this package.
package duration

import "time"

// ============================================================================
// PROBE TIMEOUTS
// ============================================================================
//
// Applied to every outbound probe request. A probe that exceeds its timeout
// is recorded as a transport error, never as a scan failure.
// ============================================================================

const (
	// ProbeTimeout is the default per-request timeout (10s)
	ProbeTimeout = 10 * time.Second

	// ProbeTimeoutTiming is used by timing-based variants, which need room
	// above the delay threshold to observe the slow response (30s)
	ProbeTimeoutTiming = 30 * time.Second

	// DialTimeout bounds TCP connection establishment (10s)
	DialTimeout = 10 * time.Second

	// TLSHandshake bounds the TLS handshake (10s)
	TLSHandshake = 10 * time.Second

	// IdleConnTimeout is how long keep-alive connections stay pooled (90s)
	IdleConnTimeout = 90 * time.Second
)

// ============================================================================
// DETECTION THRESHOLDS
// ============================================================================

const (
	// TimingThreshold is the elapsed time at or above which a time-based
	// probe is flagged as a candidate (10s)
	TimingThreshold = 10 * time.Second
)

// ============================================================================
// BROWSER TIMEOUTS
// ============================================================================
//
// Confirmation runs inside pooled browser sessions. Every wait is bounded so
// one stuck page cannot hold a session forever.
// ============================================================================

const (
	// BrowserStartup bounds launching one browser session (30s)
	BrowserStartup = 30 * time.Second

	// BrowserNavigate bounds one page load during confirmation (15s)
	BrowserNavigate = 15 * time.Second

	// BrowserObserve is how long to watch a loaded page for a dialog (2s)
	BrowserObserve = 2 * time.Second

	// BrowserTeardown bounds graceful browser shutdown before the process
	// is killed (5s)
	BrowserTeardown = 5 * time.Second
)

// ============================================================================
// HOST ERROR TRACKING
// ============================================================================

const (
	// HostErrorExpiry is how long a host stays flagged after its last
	// transport error (5min)
	HostErrorExpiry = 5 * time.Minute
)

// ============================================================================
// TELEMETRY
// ============================================================================

const (
	// MetricsShutdown bounds metrics server shutdown and request reads (5s)
	MetricsShutdown = 5 * time.Second

	// MetricsWrite bounds one metrics scrape response (10s)
	MetricsWrite = 10 * time.Second

	// ExporterConnect bounds creating the trace exporter (10s)
	ExporterConnect = 10 * time.Second

	// ExporterShutdown bounds flushing spans at exit (5s)
	ExporterShutdown = 5 * time.Second
)
