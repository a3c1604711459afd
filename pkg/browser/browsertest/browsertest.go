// Package browsertest provides in-memory browser sessions for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lostsec/lostsec/pkg/browser"
)

// ErrConstruct is returned by a Factory configured to fail.
var ErrConstruct = errors.New("browsertest: construction failed")

// VisitFunc scripts what a fake session observes.
type VisitFunc func(ctx context.Context, url string, observe time.Duration) (browser.Observation, error)

// Session is a fake browser.Session that records its use.
type Session struct {
	id      string
	factory *Factory

	inUse  atomic.Int32
	visits atomic.Int64
	closes atomic.Int32
}

func (s *Session) ID() string { return s.id }

func (s *Session) Visit(ctx context.Context, url string, observe time.Duration) (browser.Observation, error) {
	if s.inUse.Add(1) > 1 {
		s.factory.overlaps.Add(1)
	}
	defer s.inUse.Add(-1)
	s.visits.Add(1)

	if s.closes.Load() > 0 {
		return browser.Observation{}, fmt.Errorf("session %s used after close", s.id)
	}
	if s.factory.Visit == nil {
		return browser.Observation{FinalURL: url}, nil
	}
	return s.factory.Visit(ctx, url, observe)
}

func (s *Session) Close() error {
	s.closes.Add(1)
	return nil
}

// Visits returns how many times the session was visited.
func (s *Session) Visits() int64 { return s.visits.Load() }

// Closes returns how many times Close was called.
func (s *Session) Closes() int32 { return s.closes.Load() }

// Factory builds fake sessions and tracks them all.
type Factory struct {
	// Visit scripts every session's observations. Nil echoes the URL.
	Visit VisitFunc

	// FailAt makes the n-th construction (1-based) fail. Zero never fails.
	FailAt int64

	// Delay is added to each construction.
	Delay time.Duration

	mu       sync.Mutex
	sessions []*Session
	built    atomic.Int64
	overlaps atomic.Int64
}

// New satisfies browser.Factory.
func (f *Factory) New(ctx context.Context) (browser.Session, error) {
	n := f.built.Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.FailAt > 0 && n == f.FailAt {
		return nil, ErrConstruct
	}

	s := &Session{id: fmt.Sprintf("fake-%d", n), factory: f}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// Sessions returns every session built so far.
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}

// Overlaps returns how many times a session was visited while already in use.
func (f *Factory) Overlaps() int64 { return f.overlaps.Load() }

// AllClosedOnce reports whether every built session was closed exactly once.
func (f *Factory) AllClosedOnce() bool {
	for _, s := range f.Sessions() {
		if s.Closes() != 1 {
			return false
		}
	}
	return true
}
