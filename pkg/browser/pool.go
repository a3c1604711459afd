package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/lostsec/lostsec/pkg/duration"
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithReplenish makes Discard construct a replacement session, keeping the
// pool at its configured size when possible.
func WithReplenish() PoolOption {
	return func(p *Pool) { p.replenish = true }
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	Size      int   `json:"size"`
	Live      int   `json:"live"`
	Free      int   `json:"free"`
	Leased    int   `json:"leased"`
	Discarded int64 `json:"discarded"`
	Replaced  int64 `json:"replaced"`
}

// Pool holds a fixed number of sessions and leases each to one holder at a
// time. Sessions are built up front by NewPool and torn down exactly once.
type Pool struct {
	factory   Factory
	size      int
	replenish bool
	logger    *slog.Logger

	free chan Session

	mu      sync.Mutex
	live    int
	leased  int
	closed  bool
	torn    map[string]bool
	closing chan struct{}
	drained chan struct{}

	outstanding sync.WaitGroup
	discarded   atomic.Int64
	replaced    atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewPool constructs size sessions concurrently. If any construction fails,
// the sessions already built are torn down and the error wraps
// ErrResourceAcquisition.
func NewPool(ctx context.Context, size int, factory Factory, opts ...PoolOption) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive, got %d", ErrResourceAcquisition, size)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrResourceAcquisition)
	}

	p := &Pool{
		factory: factory,
		size:    size,
		logger:  slog.Default(),
		free:    make(chan Session, size),
		torn:    make(map[string]bool),
		closing: make(chan struct{}),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	sessions := make([]Session, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = factory(ctx)
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		for _, s := range sessions {
			if s != nil {
				p.teardown(s)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrResourceAcquisition, err)
	}

	for _, s := range sessions {
		p.free <- s
	}
	p.live = size
	p.logger.Debug("session pool ready", slog.Int("size", size))
	return p, nil
}

// Size returns the configured capacity.
func (p *Pool) Size() int { return p.size }

// Lease blocks until a session is free. It fails when ctx is done, the pool
// is closing, or no live sessions remain.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.live == 0 {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.outstanding.Add(1)
	p.mu.Unlock()

	select {
	case s := <-p.free:
		p.mu.Lock()
		p.leased++
		p.mu.Unlock()
		return &Lease{pool: p, session: s}, nil
	case <-ctx.Done():
		p.outstanding.Done()
		return nil, ctx.Err()
	case <-p.closing:
		p.outstanding.Done()
		return nil, ErrPoolClosed
	case <-p.drained:
		p.outstanding.Done()
		return nil, ErrPoolExhausted
	}
}

// With leases a session, runs fn with it and returns it on every exit path.
// If fn returns an error wrapping ErrSessionPoisoned, or panics, the
// session is discarded instead of released.
func (p *Pool) With(ctx context.Context, fn func(Session) error) (err error) {
	l, err := p.Lease(ctx)
	if err != nil {
		return err
	}

	poisoned := true
	defer func() {
		if poisoned {
			l.Discard(err)
		} else {
			l.Release()
		}
	}()

	err = fn(l.Session())
	poisoned = errors.Is(err, ErrSessionPoisoned)
	return err
}

// Close waits for every lease to come back, then tears down all live
// sessions. Further calls return the first result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.closing)
		p.mu.Unlock()

		p.outstanding.Wait()

		var errs []error
	drain:
		for {
			select {
			case s := <-p.free:
				if err := p.teardown(s); err != nil {
					errs = append(errs, err)
				}
			default:
				break drain
			}
		}

		p.mu.Lock()
		p.live = 0
		p.mu.Unlock()

		p.closeErr = errors.Join(errs...)
		p.logger.Debug("session pool closed", slog.Int64("discarded", p.discarded.Load()))
	})
	return p.closeErr
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:      p.size,
		Live:      p.live,
		Free:      len(p.free),
		Leased:    p.leased,
		Discarded: p.discarded.Load(),
		Replaced:  p.replaced.Load(),
	}
}

// teardown closes s unless it was already torn down.
func (p *Pool) teardown(s Session) error {
	p.mu.Lock()
	if p.torn[s.ID()] {
		p.mu.Unlock()
		return nil
	}
	p.torn[s.ID()] = true
	p.mu.Unlock()

	if err := s.Close(); err != nil {
		p.logger.Warn("session teardown failed", slog.String("session", s.ID()), slog.String("error", err.Error()))
		return fmt.Errorf("browser: close session %s: %w", s.ID(), err)
	}
	return nil
}

func (p *Pool) release(s Session) {
	p.mu.Lock()
	p.leased--
	p.mu.Unlock()
	p.free <- s
	p.outstanding.Done()
}

func (p *Pool) discard(s Session, reason error) {
	defer p.outstanding.Done()

	attrs := []any{slog.String("session", s.ID())}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", reason.Error()))
	}
	p.logger.Warn("discarding session", attrs...)

	_ = p.teardown(s)
	p.discarded.Add(1)

	p.mu.Lock()
	p.leased--
	closed := p.closed
	p.mu.Unlock()

	if p.replenish && !closed {
		ctx, cancel := context.WithTimeout(context.Background(), duration.BrowserStartup)
		fresh, err := p.factory(ctx)
		cancel()
		if err == nil {
			p.replaced.Add(1)
			p.free <- fresh
			return
		}
		p.logger.Error("session replacement failed", slog.String("error", err.Error()))
	}

	p.mu.Lock()
	p.live--
	if p.live == 0 {
		close(p.drained)
	}
	p.mu.Unlock()
}

// Lease is exclusive use of one session. Exactly one of Release or Discard
// takes effect; later calls are no-ops.
type Lease struct {
	pool    *Pool
	session Session
	once    sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() Session { return l.session }

// Release returns the session to the pool.
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.release(l.session) })
}

// Discard tears the session down instead of returning it.
func (l *Lease) Discard(reason error) {
	l.once.Do(func() { l.pool.discard(l.session, reason) })
}
