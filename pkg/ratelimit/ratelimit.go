// Package ratelimit throttles outbound probes, either globally or per host.
// It wraps golang.org/x/time/rate token buckets.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lostsec/lostsec/pkg/hosterrors"
)

// Config holds rate limiting configuration
type Config struct {
	// RequestsPerSecond limits requests per second (0 = unlimited)
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst allows bursting up to N requests before limiting kicks in.
	// Defaults to max(1, RequestsPerSecond).
	Burst int `yaml:"burst" json:"burst" mapstructure:"burst"`

	// PerHost gives every host its own bucket instead of sharing one.
	PerHost bool `yaml:"per_host" json:"per_host" mapstructure:"per_host"`
}

// Limiter gates requests. A nil *Limiter never blocks.
type Limiter struct {
	limit rate.Limit
	burst int

	global *rate.Limiter

	perHost bool
	mu      sync.Mutex
	hosts   map[string]*rate.Limiter
}

// New creates a limiter from cfg. It returns nil when cfg is nil or the rate
// is unlimited.
func New(cfg *Config) *Limiter {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	l := &Limiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		perHost: cfg.PerHost,
	}
	if cfg.PerHost {
		l.hosts = make(map[string]*rate.Limiter)
	} else {
		l.global = rate.NewLimiter(l.limit, burst)
	}
	return l
}

// Wait blocks until a request to target is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, target string) error {
	if l == nil {
		return nil
	}
	if !l.perHost {
		return l.global.Wait(ctx)
	}
	return l.forHost(hosterrors.NormalizeHost(target)).Wait(ctx)
}

// Limit returns the configured requests per second. Zero means unlimited.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limit)
}

// Hosts returns the number of per-host buckets created so far.
func (l *Limiter) Hosts() int {
	if l == nil || !l.perHost {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	hl, ok := l.hosts[host]
	if !ok {
		hl = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = hl
	}
	return hl
}
