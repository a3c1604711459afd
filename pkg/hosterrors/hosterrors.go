// Package hosterrors tracks hosts that keep failing at the transport level.
// Once a host crosses the error threshold, the scanner stops sending probes
// to it and records its remaining tasks as not vulnerable.
//
// Usage:
//
//	cache := hosterrors.NewCache(5, duration.HostErrorExpiry)
//	if cache.Check(task.Target) {
//	    // skip, host is known to be unreachable
//	}
//	if out.Err != nil {
//	    cache.MarkError(task.Target)
//	}
package hosterrors

import (
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type hostState struct {
	count     int
	markedAt  time.Time
	permanent bool
}

// Cache stores per-host transport error counts. A nil *Cache never skips.
type Cache struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	maxErrors int
	expiry    time.Duration
	skipped   atomic.Int64
}

// NewCache creates a cache that trips after maxErrors errors. A
// non-positive maxErrors returns nil, which disables skipping.
func NewCache(maxErrors int, expiry time.Duration) *Cache {
	if maxErrors <= 0 {
		return nil
	}
	return &Cache{
		hosts:     make(map[string]*hostState),
		maxErrors: maxErrors,
		expiry:    expiry,
	}
}

// MarkError records an error for a host. Returns true if the host has
// reached the threshold.
func (c *Cache) MarkError(target string) bool {
	if c == nil {
		return false
	}
	host := NormalizeHost(target)
	if host == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.hosts[host]
	if !ok {
		state = &hostState{}
		c.hosts[host] = state
	}
	if c.expired(state) {
		state.count = 0
		state.markedAt = time.Time{}
	}

	state.count++
	if state.count >= c.maxErrors {
		if state.markedAt.IsZero() {
			state.markedAt = time.Now()
		}
		return true
	}
	return false
}

// MarkPermanent trips a host immediately and keeps it tripped.
// Use for DNS failures.
func (c *Cache) MarkPermanent(target string) {
	if c == nil {
		return
	}
	host := NormalizeHost(target)
	if host == "" {
		return
	}

	c.mu.Lock()
	c.hosts[host] = &hostState{count: c.maxErrors, markedAt: time.Now(), permanent: true}
	c.mu.Unlock()
}

// Check returns true if probes to the host should be skipped. Every true
// result is counted in Skipped.
func (c *Cache) Check(target string) bool {
	if c == nil {
		return false
	}
	host := NormalizeHost(target)
	if host == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.hosts[host]
	if !ok || state.count < c.maxErrors {
		return false
	}
	if c.expired(state) {
		delete(c.hosts, host)
		return false
	}
	c.skipped.Add(1)
	return true
}

// Clear forgets a host (e.g. after a successful response).
func (c *Cache) Clear(target string) {
	if c == nil {
		return
	}
	host := NormalizeHost(target)
	c.mu.Lock()
	delete(c.hosts, host)
	c.mu.Unlock()
}

// Skipped returns how many Check calls reported a tripped host.
func (c *Cache) Skipped() int64 {
	if c == nil {
		return 0
	}
	return c.skipped.Load()
}

func (c *Cache) expired(state *hostState) bool {
	return !state.permanent && !state.markedAt.IsZero() && c.expiry > 0 && time.Since(state.markedAt) > c.expiry
}

// NormalizeHost extracts the lowercase host (without port) from a URL or
// host string.
func NormalizeHost(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	if strings.Contains(input, "://") {
		if u, err := url.Parse(input); err == nil && u.Host != "" {
			input = u.Host
		}
	}

	host, _, err := net.SplitHostPort(input)
	if err != nil {
		host = input
	}

	return strings.ToLower(host)
}
