package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lostsec/lostsec/pkg/browser"
	"github.com/lostsec/lostsec/pkg/checkpoint"
	"github.com/lostsec/lostsec/pkg/cli"
	"github.com/lostsec/lostsec/pkg/config"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/hosterrors"
	"github.com/lostsec/lostsec/pkg/httpclient"
	"github.com/lostsec/lostsec/pkg/input"
	"github.com/lostsec/lostsec/pkg/output/dispatcher"
	"github.com/lostsec/lostsec/pkg/output/exitcode"
	"github.com/lostsec/lostsec/pkg/output/hooks"
	"github.com/lostsec/lostsec/pkg/output/writers"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/ratelimit"
	"github.com/lostsec/lostsec/pkg/scanner"
	"github.com/lostsec/lostsec/pkg/ui"
)

// shutdownGrace is how long a second Ctrl-C is awaited before the process
// is left to finish on its own.
const shutdownGrace = 30 * time.Second

type scanFlags struct {
	urls        input.StringSliceFlag
	list        string
	payloads    input.StringSliceFlag
	payloadFile string
	headers     []string
}

var variantShort = map[string]string{
	"lfi":      "Local file inclusion: path-append probes, marker matching",
	"sqli":     "Time-based SQL injection: slow responses, resampled",
	"xss":      "Reflected XSS: query probes, confirmed by a browser dialog",
	"redirect": "Open redirect: Location matching, confirmed by navigation",
}

// newVariantCmd builds a variant command, or the generic "scan" command
// with a --variant flag when name is empty.
func newVariantCmd(name string, gf *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	sf := &scanFlags{}
	use, short := name, variantShort[name]
	if name == "" {
		use, short = "scan", "Scan with any variant, including custom detectors"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, name, gf, sf, stdout, stderr)
		},
	}

	fs := cmd.Flags()
	fs.VarP(&sf.urls, "url", "u", "target URL (repeatable, comma separated)")
	fs.StringVarP(&sf.list, "list", "l", "", "file of target URLs")
	fs.VarP(&sf.payloads, "payload", "P", "payload (repeatable)")
	fs.StringVarP(&sf.payloadFile, "payloads", "p", "", "file of payloads")
	fs.StringArrayVarP(&sf.headers, "header", "H", nil, "request header 'Name: value' (repeatable)")
	addConfigFlags(fs, name == "")
	return cmd
}

func runScan(cmd *cobra.Command, variant string, gf *globalFlags, sf *scanFlags, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, gf)
	slog.SetDefault(logger)

	cfg, err := loadConfig(gf.configFile, cmd.Flags(), sf.headers)
	if err != nil {
		return &exitError{code: exitcode.Configuration, err: err}
	}
	if variant != "" {
		cfg.Variant = variant
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: exitcode.Configuration, err: err}
	}

	targets, payloads := sources(sf)
	if err := targets.Validate(); err != nil {
		return &exitError{code: exitcode.Configuration, err: fmt.Errorf("targets: %w", err)}
	}
	if err := payloads.Validate(); err != nil {
		return &exitError{code: exitcode.Configuration, err: fmt.Errorf("payloads: %w", err)}
	}

	if !ui.IsSilent() {
		ui.PrintBanner(stderr)
		ui.PrintConfig(stderr, configItems(cfg))
	}

	ctx, stop := cli.SignalContext(cmd.Context(), shutdownGrace, stderr)
	defer stop()

	tel, err := setupTelemetry(cfg.Telemetry, logger)
	if err != nil {
		return &exitError{code: exitcode.Configuration, err: err}
	}
	defer func() {
		if err := tel.Close(); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	progress := ui.NewProgressLine(stderr)
	disp := dispatcher.New(dispatcher.Config{Logger: logger})
	disp.RegisterHook(hooks.NewLoggerHook(logger))
	disp.RegisterHook(&consoleHook{w: stdout, progress: progress})
	tel.register(disp)
	if err := registerWriters(disp, cfg.Output, stdout); err != nil {
		_ = disp.Close()
		return &exitError{code: exitcode.Configuration, err: err}
	}

	s, err := buildScanner(cfg, disp, tel, progress, logger)
	if err != nil {
		_ = disp.Close()
		return &exitError{code: exitcode.Configuration, err: err}
	}

	snap, scanErr := s.Scan(ctx, targets.Seq(), payloads.Seq())
	progress.Stop()
	scanErr = errors.Join(scanErr, targets.Err(), payloads.Err())

	if snap != nil {
		ui.PrintSummary(stdout, *snap)
	}
	if err := disp.Close(); err != nil {
		logger.Warn("closing outputs", slog.String("error", err.Error()))
	}

	code, msg := exitcode.FromScan(exitcode.DefaultConfig(), snap, scanErr)
	switch {
	case code == exitcode.Success:
		return nil
	case scanErr != nil:
		ui.PrintError(stderr, msg)
		return &exitError{code: code, err: scanErr}
	default:
		ui.PrintWarning(stderr, msg)
		return &exitError{code: code, err: errors.New(msg)}
	}
}

func sources(sf *scanFlags) (targets, payloads *input.Source) {
	targets = &input.Source{Values: sf.urls, ListFile: sf.list, SkipComments: true}
	if len(sf.urls) == 0 && sf.list == "" {
		targets.Stdin = input.PipedStdin()
	}
	payloads = &input.Source{Values: sf.payloads, ListFile: sf.payloadFile}
	return targets, payloads
}

func buildScanner(cfg *config.Config, disp *dispatcher.Dispatcher, tel *telemetry, progress *ui.ProgressLine, logger *slog.Logger) (*scanner.Scanner, error) {
	timeout := cfg.Probe.Timeout
	if timeout <= 0 {
		timeout = scanner.ProbeTimeoutFor(cfg.Variant)
	}
	client, err := httpclient.New(httpclient.Config{
		Timeout:            timeout,
		InsecureSkipVerify: cfg.Probe.Insecure,
		Proxy:              cfg.Probe.Proxy,
		MaxConnsPerHost:    cfg.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	exec := probe.NewExecutor(client, probe.Config{
		Method:  cfg.Probe.Method,
		Timeout: timeout,
		Headers: cfg.Probe.Headers,
		Cookie:  cfg.Probe.Cookie,
		MaxBody: cfg.Probe.MaxBody,
	}, probe.WithLogger(logger))

	variant, err := scanner.DefaultRegistry().Build(cfg.Variant, scanner.VariantOptions{
		Mode:            cfg.Probe.Mode,
		Markers:         cfg.Detection.Markers,
		Patterns:        cfg.Detection.Patterns,
		ScriptPath:      cfg.Detection.Script,
		RedirectTarget:  cfg.Detection.RedirectTarget,
		TimingThreshold: cfg.Detection.TimingThreshold,
		Samples:         cfg.Detection.Samples,
		Observe:         cfg.Browser.Observe,
		Confirmer:       cfg.Detection.Confirmer,
		Logger:          logger,
	}, exec)
	if err != nil {
		return nil, err
	}

	policy, err := scanner.ParsePolicy(cfg.Unconfirmed)
	if err != nil {
		return nil, err
	}

	sessions := browser.NewChromeFactory(browser.ChromeConfig{
		Headless:        cfg.Browser.Headless,
		ExecPath:        cfg.Browser.ExecPath,
		Proxy:           cfg.Probe.Proxy,
		StartupTimeout:  duration.BrowserStartup,
		NavigateTimeout: cfg.Browser.Navigate,
		Logger:          logger,
	})
	onProgress := func(p scanner.Progress) {
		progress.Update(string(p.Phase), p.Batch, p.Snapshot)
	}
	onInvalid := func(target string, err error) {
		logger.Warn("skipping target", slog.String("target", target), slog.String("error", err.Error()))
	}

	sc := scanner.Config{
		Variant:         variant,
		Concurrency:     cfg.Concurrency,
		BatchMultiplier: cfg.BatchMultiplier,
		PoolSize:        cfg.PoolSize,
		Unconfirmed:     policy,
		ConfirmTimeout:  cfg.Browser.Navigate + cfg.Browser.Observe,
		Executor:        exec,
		SessionFactory:  sessions,
		Replenish:       cfg.Browser.Replenish,
		RateLimiter:     ratelimit.New(&cfg.RateLimit),
		HostErrors:      hosterrors.NewCache(cfg.HostMaxErrors, duration.HostErrorExpiry),
		Dispatcher:      disp,
		OnProgress:      onProgress,
		OnInvalidTarget: onInvalid,
		Tracer:          tel.tracer(),
		Logger:          logger,
	}
	if cfg.Checkpoint != "" {
		sc.Checkpoint = checkpoint.NewManager(cfg.Checkpoint)
	}
	if cfg.Output.File != "" {
		sc.Sink = writers.NewListSink(cfg.Output.File)
	}
	return scanner.New(sc)
}

// registerWriters attaches the JSONL and template writers named in out.
func registerWriters(d *dispatcher.Dispatcher, out config.OutputConfig, stdout io.Writer) error {
	if out.JSONL != "" {
		w, err := openOutput(out.JSONL, stdout)
		if err != nil {
			return err
		}
		d.RegisterWriter(writers.NewJSONLWriter(w, writers.JSONLOptions{OmitProgress: true}))
	}
	if out.Template != "" {
		tc := writers.TemplateConfig{TemplatePath: out.Template}
		for _, name := range writers.BuiltInTemplates() {
			if name == out.Template {
				tc = writers.TemplateConfig{BuiltIn: name}
			}
		}
		dest := out.TemplateOut
		if dest == "" {
			dest = "-"
		}
		w, err := openOutput(dest, stdout)
		if err != nil {
			return err
		}
		tw, err := writers.NewTemplateWriter(w, tc)
		if err != nil {
			_ = w.Close()
			return err
		}
		d.RegisterWriter(tw)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// openOutput opens path for writing; "-" is stdout, which is never closed.
func openOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

func configItems(cfg *config.Config) []ui.ConfigItem {
	items := []ui.ConfigItem{
		{Label: "Variant", Value: cfg.Variant},
		{Label: "Concurrency", Value: strconv.Itoa(cfg.Concurrency)},
		{Label: "Browser pool", Value: strconv.Itoa(cfg.PoolSize)},
		{Label: "Unconfirmed", Value: cfg.Unconfirmed},
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		items = append(items, ui.ConfigItem{Label: "Rate limit", Value: fmt.Sprintf("%g/s", cfg.RateLimit.RequestsPerSecond)})
	}
	if cfg.Checkpoint != "" {
		items = append(items, ui.ConfigItem{Label: "Checkpoint", Value: cfg.Checkpoint})
	}
	if cfg.Output.File != "" {
		items = append(items, ui.ConfigItem{Label: "Output", Value: cfg.Output.File})
	}
	return items
}
