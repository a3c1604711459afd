package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/httpclient"
)

// ChromeConfig configures chromedp-backed sessions.
type ChromeConfig struct {
	// Headless runs Chrome without a window (default true)
	Headless bool `json:"headless" yaml:"headless"`

	// ExecPath overrides the Chrome binary lookup
	ExecPath string `json:"exec_path,omitempty" yaml:"exec_path"`

	// Proxy routes browser traffic through an HTTP proxy
	Proxy string `json:"proxy,omitempty" yaml:"proxy"`

	// UserAgents is the rotation set; each session picks one
	UserAgents []string `json:"-" yaml:"-"`

	// StartupTimeout bounds launching the browser
	StartupTimeout time.Duration `json:"startup_timeout" yaml:"startup_timeout"`

	// NavigateTimeout bounds one page load
	NavigateTimeout time.Duration `json:"navigate_timeout" yaml:"navigate_timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// DefaultChromeConfig returns a headless configuration.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless:        true,
		StartupTimeout:  duration.BrowserStartup,
		NavigateTimeout: duration.BrowserNavigate,
	}
}

func (c ChromeConfig) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(httpclient.RandomUserAgent(c.UserAgents)),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(c.Proxy))
	}
	return opts
}

// NewChromeFactory returns a Factory that launches one Chrome process per
// session.
func NewChromeFactory(cfg ChromeConfig) Factory {
	def := DefaultChromeConfig()
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = def.StartupTimeout
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = def.NavigateTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(ctx context.Context) (Session, error) {
		s, err := startChrome(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type dialogEvent struct {
	kind    string
	message string
}

type chromeSession struct {
	id         string
	ctx        context.Context
	cancel     func()
	dialogs    chan dialogEvent
	navTimeout time.Duration
	logger     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func startChrome(ctx context.Context, cfg ChromeConfig) (*chromeSession, error) {
	// The browser outlives ctx: ctx only bounds startup.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), cfg.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		id:         uuid.NewString(),
		ctx:        browserCtx,
		dialogs:    make(chan dialogEvent, 1),
		navTimeout: cfg.NavigateTimeout,
		logger:     cfg.Logger,
	}
	s.cancel = func() {
		browserCancel()
		allocCancel()
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		select {
		case s.dialogs <- dialogEvent{kind: string(e.Type), message: e.Message}:
		default:
		}
		go func() {
			_ = chromedp.Run(browserCtx, page.HandleJavaScriptDialog(true))
		}()
	})

	started := make(chan error, 1)
	go func() {
		// First Run on the browser context allocates the process.
		started <- chromedp.Run(browserCtx)
	}()

	timer := time.NewTimer(cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-timer.C:
		_ = s.Close()
		return nil, fmt.Errorf("start chrome: timed out after %s", cfg.StartupTimeout)
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}

	s.logger.Debug("chrome session started", slog.String("session", s.id))
	return s, nil
}

func (s *chromeSession) ID() string { return s.id }

func (s *chromeSession) Visit(ctx context.Context, target string, observe time.Duration) (Observation, error) {
	var obs Observation

	// discard dialogs left over from a previous visit
	select {
	case <-s.dialogs:
	default:
	}

	navCtx, cancel := context.WithTimeout(s.ctx, s.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	navErr := chromedp.Run(navCtx, chromedp.Navigate(target))

	wait := time.NewTimer(observe)
	defer wait.Stop()
	select {
	case d := <-s.dialogs:
		obs.DialogOpened = true
		obs.DialogType = d.kind
		obs.DialogMessage = d.message
	case <-wait.C:
	case <-navCtx.Done():
	}

	if navErr != nil {
		if obs.DialogOpened {
			return obs, nil
		}
		return obs, fmt.Errorf("navigate %s: %w", target, navErr)
	}

	locCtx, locCancel := context.WithTimeout(s.ctx, duration.BrowserTeardown)
	defer locCancel()
	if err := chromedp.Run(locCtx, chromedp.Location(&obs.FinalURL)); err != nil && !obs.DialogOpened {
		return obs, fmt.Errorf("read location: %w", err)
	}
	return obs, nil
}

// Close cancels the chromedp contexts. If the graceful shutdown blocks past
// BrowserTeardown, the Chrome process tree is killed.
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		var proc *os.Process
		if c := chromedp.FromContext(s.ctx); c != nil && c.Browser != nil {
			proc = c.Browser.Process()
		}

		done := make(chan struct{})
		go func() {
			s.cancel()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(duration.BrowserTeardown):
			killProcessTree(proc)
			s.closeErr = fmt.Errorf("chrome session %s: teardown timed out, process killed", s.id)
		}
	})
	return s.closeErr
}
