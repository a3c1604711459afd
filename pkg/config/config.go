// Package config holds the scan configuration file format. Values are
// loaded from YAML, then overridden by flags and LOSTSEC_* environment
// variables in the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/ratelimit"
	"github.com/lostsec/lostsec/pkg/task"
)

// Variants is the closed set of scan presets.
var Variants = []string{"lfi", "sqli", "xss", "redirect", "custom"}

// Unconfirmed candidate policies.
const (
	PolicyDrop   = "drop"
	PolicyReport = "report"
)

// Config is the full scan configuration.
type Config struct {
	Variant         string `yaml:"variant" mapstructure:"variant"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	BatchMultiplier int    `yaml:"batch_multiplier" mapstructure:"batch_multiplier"`
	PoolSize        int    `yaml:"pool_size" mapstructure:"pool_size"`

	// Unconfirmed decides what happens to candidates that never reach a
	// confirmer: "drop" counts them not vulnerable, "report" counts them
	// vulnerable.
	Unconfirmed string `yaml:"unconfirmed" mapstructure:"unconfirmed"`

	// HostMaxErrors skips a host's remaining tasks after this many
	// transport errors (0 disables).
	HostMaxErrors int `yaml:"host_max_errors" mapstructure:"host_max_errors"`

	Probe      ProbeConfig      `yaml:"probe" mapstructure:"probe"`
	RateLimit  ratelimit.Config `yaml:"rate_limit" mapstructure:"rate_limit"`
	Detection  DetectionConfig  `yaml:"detection" mapstructure:"detection"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Checkpoint string           `yaml:"checkpoint" mapstructure:"checkpoint"`
}

// ProbeConfig controls outbound probe requests.
type ProbeConfig struct {
	// Mode overrides the variant's injection mode: query, path or path-escaped.
	Mode     string            `yaml:"mode" mapstructure:"mode"`
	Method   string            `yaml:"method" mapstructure:"method"`
	Timeout  time.Duration     `yaml:"timeout" mapstructure:"timeout"`
	Headers  map[string]string `yaml:"headers" mapstructure:"headers"`
	Cookie   string            `yaml:"cookie" mapstructure:"cookie"`
	Proxy    string            `yaml:"proxy" mapstructure:"proxy"`
	Insecure bool              `yaml:"insecure" mapstructure:"insecure"`
	MaxBody  int64             `yaml:"max_body" mapstructure:"max_body"`
}

// DetectionConfig parameterizes detectors and confirmers.
type DetectionConfig struct {
	Markers         []string      `yaml:"markers" mapstructure:"markers"`
	Patterns        []string      `yaml:"patterns" mapstructure:"patterns"`
	Script          string        `yaml:"script" mapstructure:"script"`
	RedirectTarget  string        `yaml:"redirect_target" mapstructure:"redirect_target"`
	TimingThreshold time.Duration `yaml:"timing_threshold" mapstructure:"timing_threshold"`
	Samples         int           `yaml:"samples" mapstructure:"samples"`

	// Confirmer names the custom variant's confirmer: dialog, navigation,
	// resample or none.
	Confirmer string `yaml:"confirmer" mapstructure:"confirmer"`
}

// BrowserConfig controls pooled browser sessions.
type BrowserConfig struct {
	Headless  bool          `yaml:"headless" mapstructure:"headless"`
	ExecPath  string        `yaml:"exec_path" mapstructure:"exec_path"`
	Observe   time.Duration `yaml:"observe" mapstructure:"observe"`
	Navigate  time.Duration `yaml:"navigate" mapstructure:"navigate"`
	Replenish bool          `yaml:"replenish" mapstructure:"replenish"`
}

// OutputConfig selects where results go.
type OutputConfig struct {
	// File receives the vulnerable URL list at scan end.
	File string `yaml:"file" mapstructure:"file"`

	// JSONL receives the event stream.
	JSONL string `yaml:"jsonl" mapstructure:"jsonl"`

	// Template is a built-in template name or a path to a template file;
	// TemplateOut is where the rendering goes.
	Template    string `yaml:"template" mapstructure:"template"`
	TemplateOut string `yaml:"template_out" mapstructure:"template_out"`
}

// TelemetryConfig enables metrics and tracing.
type TelemetryConfig struct {
	MetricsAddr  string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure" mapstructure:"otlp_insecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Variant:         "lfi",
		Concurrency:     defaults.ConcurrencyProbe,
		BatchMultiplier: defaults.BatchMultiplier,
		PoolSize:        defaults.PoolSize,
		Unconfirmed:     PolicyDrop,
		HostMaxErrors:   defaults.HostMaxErrors,
		Probe: ProbeConfig{
			Method:  "GET",
			MaxBody: defaults.BodyPrefix,
		},
		Detection: DetectionConfig{
			RedirectTarget:  defaults.RedirectTarget,
			TimingThreshold: duration.TimingThreshold,
			Samples:         defaults.ResampleCount,
		},
		Browser: BrowserConfig{
			Headless: true,
			Observe:  duration.BrowserObserve,
			Navigate: duration.BrowserNavigate,
		},
	}
}

// Load reads a YAML file over Default(). Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Variant == "" {
		errs = append(errs, fmt.Errorf("%w: variant", ErrMissingRequired))
	} else if !slices.Contains(Variants, c.Variant) {
		bad("unknown variant %q", c.Variant)
	}
	if c.Concurrency < defaults.ConcurrencyMin {
		bad("concurrency must be at least %d, got %d", defaults.ConcurrencyMin, c.Concurrency)
	}
	if c.BatchMultiplier < 1 {
		bad("batch_multiplier must be at least 1, got %d", c.BatchMultiplier)
	}
	if c.PoolSize < 0 {
		bad("pool_size must not be negative, got %d", c.PoolSize)
	}
	if c.Unconfirmed != PolicyDrop && c.Unconfirmed != PolicyReport {
		bad("unconfirmed must be %q or %q, got %q", PolicyDrop, PolicyReport, c.Unconfirmed)
	}
	if c.HostMaxErrors < 0 {
		bad("host_max_errors must not be negative")
	}
	if c.Probe.Mode != "" {
		if _, ok := task.ParseMode(c.Probe.Mode); !ok {
			bad("unknown probe mode %q", c.Probe.Mode)
		}
	}
	if c.Probe.Timeout < 0 {
		bad("probe timeout must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		bad("rate_limit requests_per_second must not be negative")
	}
	if c.Detection.Samples < 0 {
		bad("detection samples must not be negative")
	}
	if c.Variant == "custom" && len(c.Detection.Markers) == 0 && len(c.Detection.Patterns) == 0 && c.Detection.Script == "" {
		errs = append(errs, fmt.Errorf("%w: custom variant needs detection markers, patterns or script", ErrMissingRequired))
	}
	switch c.Detection.Confirmer {
	case "", "none", "dialog", "navigation", "resample":
	default:
		bad("unknown confirmer %q", c.Detection.Confirmer)
	}
	return errors.Join(errs...)
}
