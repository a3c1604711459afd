package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lostsec/lostsec/pkg/config"
)

// flagKeys maps flag names to config keys. Changed flags and LOSTSEC_*
// environment variables override the config file.
var flagKeys = map[string]string{
	"variant":          "variant",
	"concurrency":      "concurrency",
	"batch-multiplier": "batch_multiplier",
	"pool-size":        "pool_size",
	"unconfirmed":      "unconfirmed",
	"host-max-errors":  "host_max_errors",
	"checkpoint":       "checkpoint",

	"mode":     "probe.mode",
	"method":   "probe.method",
	"timeout":  "probe.timeout",
	"cookie":   "probe.cookie",
	"proxy":    "probe.proxy",
	"insecure": "probe.insecure",
	"max-body": "probe.max_body",

	"rate-limit": "rate_limit.requests_per_second",
	"burst":      "rate_limit.burst",
	"per-host":   "rate_limit.per_host",

	"marker":           "detection.markers",
	"pattern":          "detection.patterns",
	"script":           "detection.script",
	"redirect-target":  "detection.redirect_target",
	"timing-threshold": "detection.timing_threshold",
	"samples":          "detection.samples",
	"confirmer":        "detection.confirmer",

	"headless":         "browser.headless",
	"chrome-path":      "browser.exec_path",
	"observe":          "browser.observe",
	"navigate-timeout": "browser.navigate",
	"replenish":        "browser.replenish",

	"output":       "output.file",
	"jsonl":        "output.jsonl",
	"template":     "output.template",
	"template-out": "output.template_out",

	"metrics-addr":  "telemetry.metrics_addr",
	"otlp-endpoint": "telemetry.otlp_endpoint",
	"otlp-insecure": "telemetry.otlp_insecure",
}

// addConfigFlags registers the flags in flagKeys with defaults from
// config.Default().
func addConfigFlags(fs *pflag.FlagSet, withVariant bool) {
	d := config.Default()

	if withVariant {
		fs.String("variant", d.Variant, "scan variant: lfi, sqli, xss, redirect or custom")
	}
	fs.IntP("concurrency", "c", d.Concurrency, "concurrent probes")
	fs.Int("batch-multiplier", d.BatchMultiplier, "batch size as a multiple of concurrency")
	fs.Int("pool-size", d.PoolSize, "browser sessions for confirmation (0 disables confirmation)")
	fs.String("unconfirmed", d.Unconfirmed, "unconfirmed candidates: drop or report")
	fs.Int("host-max-errors", d.HostMaxErrors, "skip a host after this many transport errors (0 disables)")
	fs.String("checkpoint", d.Checkpoint, "resume file, saved after every batch")

	fs.String("mode", d.Probe.Mode, "injection mode override: query, path or path-escaped")
	fs.StringP("method", "X", d.Probe.Method, "probe HTTP method")
	fs.Duration("timeout", d.Probe.Timeout, "probe timeout (0 picks the variant default)")
	fs.String("cookie", d.Probe.Cookie, "Cookie header sent with every probe")
	fs.String("proxy", d.Probe.Proxy, "HTTP proxy for probes and browsers")
	fs.BoolP("insecure", "k", d.Probe.Insecure, "skip TLS verification")
	fs.Int64("max-body", d.Probe.MaxBody, "bytes of response body inspected")

	fs.Float64("rate-limit", d.RateLimit.RequestsPerSecond, "probes per second (0 is unlimited)")
	fs.Int("burst", d.RateLimit.Burst, "rate limit burst")
	fs.Bool("per-host", d.RateLimit.PerHost, "rate limit each host separately")

	fs.StringSlice("marker", d.Detection.Markers, "body substring that marks a hit (repeatable)")
	fs.StringSlice("pattern", d.Detection.Patterns, "body regex that marks a hit (repeatable)")
	fs.String("script", d.Detection.Script, "tengo detector script")
	fs.String("redirect-target", d.Detection.RedirectTarget, "redirect destination to look for")
	fs.Duration("timing-threshold", d.Detection.TimingThreshold, "response time that flags a time-based candidate")
	fs.Int("samples", d.Detection.Samples, "resample count for time-based confirmation")
	fs.String("confirmer", d.Detection.Confirmer, "custom variant confirmer: dialog, navigation, resample or none")

	fs.Bool("headless", d.Browser.Headless, "run browsers headless")
	fs.String("chrome-path", d.Browser.ExecPath, "Chrome binary")
	fs.Duration("observe", d.Browser.Observe, "how long to watch a page for a dialog")
	fs.Duration("navigate-timeout", d.Browser.Navigate, "page load timeout")
	fs.Bool("replenish", d.Browser.Replenish, "replace browser sessions that fail")

	fs.StringP("output", "o", d.Output.File, "write vulnerable URLs to this file")
	fs.String("jsonl", d.Output.JSONL, "write the event stream as JSON lines to this file (- for stdout)")
	fs.String("template", d.Output.Template, "report template: csv, markdown, text-summary or a file path")
	fs.String("template-out", d.Output.TemplateOut, "where the template report goes (- for stdout)")

	fs.String("metrics-addr", d.Telemetry.MetricsAddr, "serve Prometheus metrics on this address")
	fs.String("otlp-endpoint", d.Telemetry.OTLPEndpoint, "export traces to this OTLP gRPC endpoint")
	fs.Bool("otlp-insecure", d.Telemetry.OTLPInsecure, "plaintext OTLP connection")
}

// loadConfig layers config.Default(), the YAML file at path, the
// environment and changed flags, in increasing precedence. headers are
// "Name: value" strings merged over probe.headers.
func loadConfig(path string, fs *pflag.FlagSet, headers []string) (*config.Config, error) {
	base := config.Default()
	if path != "" {
		var err error
		if base, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	raw, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode base config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load base config: %w", err)
	}
	v.SetEnvPrefix("LOSTSEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind --%s: %w", name, err)
		}
	}

	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	if len(headers) > 0 {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return nil, err
		}
		if cfg.Probe.Headers == nil {
			cfg.Probe.Headers = make(map[string]string, len(parsed))
		}
		for k, val := range parsed {
			cfg.Probe.Headers[k] = val
		}
	}
	return cfg, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, h := range values {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q is not Name: value", config.ErrInvalidConfig, h)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}
