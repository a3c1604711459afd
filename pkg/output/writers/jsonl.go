// Package writers provides dispatcher.Writer implementations and the
// end-of-scan list sink.
package writers

import (
	"io"
	"sync"

	"github.com/lostsec/lostsec/pkg/jsonutil"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*JSONLWriter)(nil)

// JSONLWriter writes events as newline-delimited JSON. Each line parses on
// its own, so the stream can be tailed with jq while a scan runs.
type JSONLWriter struct {
	w       io.Writer
	mu      sync.Mutex
	opts    JSONLOptions
	encoder *jsonutil.Encoder
}

// JSONLOptions configures the JSONL writer behavior.
type JSONLOptions struct {
	// OmitProgress drops per-batch progress events.
	OmitProgress bool

	// OnlyVulnerable keeps only result events whose status is vulnerable,
	// plus the start and summary events.
	OnlyVulnerable bool

	// Pretty enables indented JSON output.
	// Note: This is not JSONL compliant but useful for debugging.
	Pretty bool
}

// NewJSONLWriter creates a new JSONL writer that writes to w.
// The writer is safe for concurrent use.
func NewJSONLWriter(w io.Writer, opts JSONLOptions) *JSONLWriter {
	encoder := jsonutil.NewStreamEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("  ")
	}
	return &JSONLWriter{w: w, opts: opts, encoder: encoder}
}

// Write writes an event as a single JSON line.
// Returns nil if the event was filtered out by options.
func (jw *JSONLWriter) Write(event events.Event) error {
	if re, ok := event.(*events.ResultEvent); ok && jw.opts.OnlyVulnerable {
		if re.Result.Status != "vulnerable" {
			return nil
		}
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.encoder.Encode(event)
}

// Flush is a no-op; every event is written as it arrives.
func (jw *JSONLWriter) Flush() error {
	return nil
}

// Close closes the underlying writer if it implements io.Closer.
func (jw *JSONLWriter) Close() error {
	if closer, ok := jw.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SupportsEvent returns true for every event type except progress when
// OmitProgress is set.
func (jw *JSONLWriter) SupportsEvent(t events.EventType) bool {
	return !(jw.opts.OmitProgress && t == events.EventTypeProgress)
}
