// Package dispatcher routes scan events to writers and hooks. Writers
// persist events (JSONL, templates, the vulnerable list); hooks feed
// real-time integrations (logs, metrics, traces).
//
// The scanner holds a single Dispatcher, so event generation stays
// decoupled from event consumption.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/lostsec/lostsec/pkg/output/events"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher: closed")

// Writer is the interface for all output writers.
type Writer interface {
	// Write writes an event to the output.
	Write(event events.Event) error

	// Flush ensures all buffered events are written.
	Flush() error

	// Close closes the writer and releases any resources.
	Close() error

	// SupportsEvent returns true if the writer handles this event type.
	SupportsEvent(eventType events.EventType) bool
}

// Hook is the interface for event hooks.
type Hook interface {
	// OnEvent is called for each matching event.
	OnEvent(ctx context.Context, event events.Event) error

	// EventTypes returns the event types this hook handles.
	// Return nil or empty slice to receive all events.
	EventTypes() []events.EventType
}

// Config configures the dispatcher behavior.
type Config struct {
	// Async enables asynchronous hook processing.
	// When true, hooks are called in goroutines and Close waits for them.
	Async bool

	// Logger receives writer and hook failures (default slog.Default()).
	Logger *slog.Logger
}

// Dispatcher routes events to writers and hooks.
// It is safe for concurrent use.
type Dispatcher struct {
	writers []Writer
	hooks   []Hook
	mu      sync.RWMutex

	async  bool
	logger *slog.Logger
	closed atomic.Bool
	hookWg sync.WaitGroup
	failed atomic.Int64
}

// New creates a new event dispatcher with the given configuration.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{async: cfg.Async, logger: logger}
}

// RegisterWriter adds a writer to the dispatcher.
func (d *Dispatcher) RegisterWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// RegisterHook adds a hook to the dispatcher.
func (d *Dispatcher) RegisterHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch sends an event to all registered writers and hooks.
// Individual failures are logged and counted so that every consumer still
// receives the event.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return ErrClosed
	}

	for _, w := range d.writers {
		if !w.SupportsEvent(event.EventType()) {
			continue
		}
		if err := w.Write(event); err != nil {
			d.fail("writer", event, err)
		}
	}

	for _, h := range d.hooks {
		if !hookSupportsEvent(h, event.EventType()) {
			continue
		}
		if d.async {
			d.hookWg.Add(1)
			go func(hook Hook) {
				defer d.hookWg.Done()
				if err := hook.OnEvent(ctx, event); err != nil {
					d.fail("hook", event, err)
				}
			}(h)
			continue
		}
		if err := h.OnEvent(ctx, event); err != nil {
			d.fail("hook", event, err)
		}
	}
	return nil
}

// Failures returns how many writer or hook calls returned an error.
func (d *Dispatcher) Failures() int64 {
	return d.failed.Load()
}

func (d *Dispatcher) fail(kind string, event events.Event, err error) {
	d.failed.Add(1)
	d.logger.Warn("event consumer failed",
		slog.String("consumer", kind),
		slog.String("event", string(event.EventType())),
		slog.String("error", err.Error()))
}

func hookSupportsEvent(h Hook, eventType events.EventType) bool {
	types := h.EventTypes()
	return len(types) == 0 || slices.Contains(types, eventType)
}

// Flush flushes all registered writers.
func (d *Dispatcher) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var errs []error
	for _, w := range d.writers {
		errs = append(errs, w.Flush())
	}
	return errors.Join(errs...)
}

// Close waits for in-flight async hooks, then flushes and closes all
// writers. Safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Swap(true) {
		return nil
	}

	d.hookWg.Wait()

	var errs []error
	for _, w := range d.writers {
		errs = append(errs, w.Flush(), w.Close())
	}
	return errors.Join(errs...)
}
