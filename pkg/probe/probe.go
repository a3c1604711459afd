// Package probe executes a single probe request per task and captures what
// the detector needs to classify it. Transport failures never escape as Go
// errors: they are recorded on the Outcome.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/httpclient"
	"github.com/lostsec/lostsec/pkg/iohelper"
	"github.com/lostsec/lostsec/pkg/task"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config controls how probe requests are built.
type Config struct {
	// Method is the HTTP method (default GET).
	Method string

	// Timeout bounds one request including body read (default 10s).
	Timeout time.Duration

	// Headers are added to every request.
	Headers map[string]string

	// Cookie is sent verbatim as the Cookie header when set.
	Cookie string

	// UserAgents is the rotation set. One is drawn per request.
	UserAgents []string

	// MaxBody is the response prefix kept for detection (default 512KB).
	MaxBody int64
}

// DefaultConfig returns the default probe configuration.
func DefaultConfig() Config {
	return Config{
		Method:     http.MethodGet,
		Timeout:    duration.ProbeTimeout,
		UserAgents: defaults.UserAgents,
		MaxBody:    iohelper.DefaultMaxBodySize,
	}
}

// Outcome is the observable result of one probe.
type Outcome struct {
	URL        string
	StatusCode int
	Header     http.Header
	Location   string

	// Body is the decoded, bounded body prefix.
	Body string

	// Elapsed is the time until response headers arrived.
	Elapsed time.Duration

	// Err is set when the request could not complete. It matches
	// httpclient.ErrTransport (or ErrBuild for malformed tasks).
	Err error

	// DecodeErr is set when the body could not be decoded to text.
	DecodeErr error
}

// Failed reports whether the probe hit a transport or build error.
func (o Outcome) Failed() bool { return o.Err != nil }

// Executor sends probes. It holds no per-task state and is safe for
// concurrent use.
type Executor struct {
	client Doer
	cfg    Config
	logger *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor around client. Zero config fields take
// their defaults.
func NewExecutor(client Doer, cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.Method == "" {
		cfg.Method = def.Method
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = def.UserAgents
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = def.MaxBody
	}

	e := &Executor{client: client, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config { return e.cfg }

// Execute builds the task's URL and fetches it.
func (e *Executor) Execute(ctx context.Context, t task.ProbeTask) Outcome {
	u, err := t.URL()
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %w", ErrBuild, err)}
	}
	return e.Fetch(ctx, u)
}

// Fetch sends one request to rawURL.
func (e *Executor) Fetch(ctx context.Context, rawURL string) Outcome {
	out := Outcome{URL: rawURL}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, e.cfg.Method, rawURL, nil)
	if err != nil {
		out.Err = fmt.Errorf("%w: %w", ErrBuild, err)
		return out
	}
	e.decorate(req)

	start := time.Now()
	resp, err := e.client.Do(req)
	out.Elapsed = time.Since(start)
	if err != nil {
		out.Err = httpclient.Classify(err)
		e.logger.Debug("probe transport error",
			slog.String("url", rawURL),
			slog.Duration("elapsed", out.Elapsed),
			slog.String("error", err.Error()))
		return out
	}
	defer iohelper.DrainAndClose(resp.Body)

	out.StatusCode = resp.StatusCode
	out.Header = resp.Header
	out.Location = resp.Header.Get("Location")

	raw, err := iohelper.ReadBody(resp.Body, e.cfg.MaxBody)
	if err != nil {
		out.Err = httpclient.Classify(err)
		return out
	}

	body, err := iohelper.DecodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		out.DecodeErr = err
		return out
	}
	out.Body = body
	return out
}

func (e *Executor) decorate(req *http.Request) {
	req.Header.Set("User-Agent", httpclient.RandomUserAgent(e.cfg.UserAgents))
	for k, v := range e.cfg.Headers {
		if strings.EqualFold(k, "Host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}
	if e.cfg.Cookie != "" {
		req.Header.Set("Cookie", e.cfg.Cookie)
	}
}
