package writers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ListSink writes the final vulnerable URL list, one per line. It is handed
// the list exactly once when a scan ends.
type ListSink struct {
	path string
	w    io.Writer

	mu      sync.Mutex
	written int
}

// NewListSink returns a sink that creates (or truncates) path on Write.
func NewListSink(path string) *ListSink {
	return &ListSink{path: path}
}

// NewListWriterSink returns a sink that writes to w.
func NewListWriterSink(w io.Writer) *ListSink {
	return &ListSink{w: w}
}

// Write stores targets. An empty list still creates the file so that an
// empty result is distinguishable from a scan that never finished.
func (s *ListSink) Write(targets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.w
	if w == nil {
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
		}
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	for _, t := range targets {
		if _, err := fmt.Fprintln(bw, t); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.written = len(targets)
	return nil
}

// Written returns how many URLs the last Write stored.
func (s *ListSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Path returns the output file path, empty for writer-backed sinks.
func (s *ListSink) Path() string { return s.path }
