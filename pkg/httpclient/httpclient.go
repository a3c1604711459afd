// Package httpclient builds the HTTP clients used for probing.
// Probe clients never follow redirects: open-redirect detection needs the
// raw 3xx response and its Location header.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout (default: 10s)
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification (default: true for scanning)
	InsecureSkipVerify bool

	// Proxy is the HTTP/HTTPS proxy URL (optional)
	Proxy string

	// MaxConnsPerHost is the maximum connections per host (default: probe concurrency)
	MaxConnsPerHost int

	// FollowRedirects lets the client follow 3xx responses (default: false)
	FollowRedirects bool
}

// DefaultConfig returns defaults tuned for high-concurrency probing.
func DefaultConfig() Config {
	return Config{
		Timeout:            duration.ProbeTimeout,
		InsecureSkipVerify: true,
		MaxConnsPerHost:    defaults.ConcurrencyProbe,
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.ProbeTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaults.ConcurrencyProbe
	}

	dialer := &net.Dialer{
		Timeout:   duration.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     duration.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   duration.TLSHandshake,

		DialContext: dialer.DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec
		},
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, cfg.Proxy)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

// RandomUserAgent picks one entry from agents, falling back to the default
// rotation set when agents is empty.
func RandomUserAgent(agents []string) string {
	if len(agents) == 0 {
		agents = defaults.UserAgents
	}
	return agents[rand.IntN(len(agents))]
}
