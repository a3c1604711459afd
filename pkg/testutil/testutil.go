// Package testutil provides shared test helpers: fault injection and
// panic/deadlock assertions.
package testutil

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// ErrFault is the sentinel error returned by fault injection helpers.
var ErrFault = errors.New("injected fault")

// FailingWriter is an io.Writer that fails after Limit bytes written.
// If Limit is 0, every Write call fails immediately.
type FailingWriter struct {
	written int
	Limit   int
}

func (w *FailingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.Limit {
		remaining := w.Limit - w.written
		if remaining > 0 {
			w.written += remaining
			return remaining, ErrFault
		}
		return 0, ErrFault
	}
	w.written += len(p)
	return len(p), nil
}

// AssertNoPanic calls fn and fails the test if it panics.
func AssertNoPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("%s: unexpected panic: %v", name, r)
		}
	}()
	fn()
}

// AssertTimeout runs fn and fails if it doesn't complete within d.
func AssertTimeout(t *testing.T, name string, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s: timed out after %v (possible deadlock)", name, d)
	}
}

// RunConcurrently runs fn count times across goroutines released at the
// same instant, and waits for all to finish.
func RunConcurrently(count int, fn func(i int)) {
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func(idx int) {
			defer wg.Done()
			<-start
			fn(idx)
		}(i)
	}
	close(start)
	wg.Wait()
}
