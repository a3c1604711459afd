package scanner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lostsec/lostsec/pkg/confirm"
	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/detector"
	"github.com/lostsec/lostsec/pkg/duration"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/task"
)

// Variant binds one detector, an optional confirmer and an injection mode.
// One engine runs every vulnerability class through the same pipeline.
type Variant struct {
	Name     string
	Mode     task.Mode
	Detector detector.Detector

	// Confirmer is nil when probe verdicts are final.
	Confirmer confirm.Confirmer
}

// VariantOptions parameterizes the presets. Zero values select defaults.
type VariantOptions struct {
	// Mode overrides the preset's injection mode.
	Mode string

	Markers         []string
	Patterns        []string
	ScriptPath      string
	RedirectTarget  string
	TimingThreshold time.Duration
	Samples         int
	Observe         time.Duration

	// Confirmer picks the custom variant's confirmer: dialog, navigation,
	// resample or none.
	Confirmer string

	Logger *slog.Logger
}

// VariantFactory builds a variant. exec is the probe executor the scan will
// use, needed by sessionless confirmers that re-probe.
type VariantFactory func(opts VariantOptions, exec *probe.Executor) (Variant, error)

// Registry maps variant names to factories, in registration order.
type Registry struct {
	factories map[string]VariantFactory
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]VariantFactory)}
}

// DefaultRegistry returns the built-in presets: lfi, sqli, xss, redirect
// and custom.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("lfi", lfiVariant)
	r.Register("sqli", sqliVariant)
	r.Register("xss", xssVariant)
	r.Register("redirect", redirectVariant)
	r.Register("custom", customVariant)
	return r
}

// Register adds or replaces a named factory.
func (r *Registry) Register(name string, fn VariantFactory) {
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = fn
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Build constructs the named variant.
func (r *Registry) Build(name string, opts VariantOptions, exec *probe.Executor) (Variant, error) {
	fn, ok := r.factories[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	v, err := fn(opts, exec)
	if err != nil {
		return Variant{}, fmt.Errorf("scanner: variant %s: %w", name, err)
	}
	v.Name = name
	if opts.Mode != "" {
		m, ok := task.ParseMode(opts.Mode)
		if !ok {
			return Variant{}, fmt.Errorf("scanner: variant %s: unknown mode %q", name, opts.Mode)
		}
		v.Mode = m
	}
	return v, nil
}

// ProbeTimeoutFor returns the default request timeout for a variant. Timing
// variants need room above the delay threshold.
func ProbeTimeoutFor(name string) time.Duration {
	if name == "sqli" {
		return duration.ProbeTimeoutTiming
	}
	return duration.ProbeTimeout
}

func lfiVariant(opts VariantOptions, _ *probe.Executor) (Variant, error) {
	markers := opts.Markers
	if len(markers) == 0 {
		markers = []string{defaults.LFIMarker}
	}
	det, err := detector.NewSubstring(markers...)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Mode: task.ModePathEscaped, Detector: det}, nil
}

func sqliVariant(opts VariantOptions, exec *probe.Executor) (Variant, error) {
	timing := detector.NewTiming(opts.TimingThreshold)
	return Variant{
		Mode:      task.ModePath,
		Detector:  timing,
		Confirmer: confirm.Resample{Exec: exec, Timing: timing, Samples: opts.Samples},
	}, nil
}

func xssVariant(opts VariantOptions, _ *probe.Executor) (Variant, error) {
	return Variant{
		Mode:      task.ModeQuery,
		Detector:  detector.Reflection{},
		Confirmer: confirm.Dialog{Observe: opts.Observe},
	}, nil
}

func redirectVariant(opts VariantOptions, _ *probe.Executor) (Variant, error) {
	target := opts.RedirectTarget
	if target == "" {
		target = defaults.RedirectTarget
	}
	det, err := detector.NewRedirect(target)
	if err != nil {
		return Variant{}, err
	}
	return Variant{
		Mode:      task.ModePath,
		Detector:  det,
		Confirmer: confirm.Navigation{Target: det, Observe: opts.Observe},
	}, nil
}

// customVariant picks the detector from the options: a script wins over
// regex patterns, which win over substring markers.
func customVariant(opts VariantOptions, exec *probe.Executor) (Variant, error) {
	v := Variant{Mode: task.ModeQuery}

	var err error
	switch {
	case opts.ScriptPath != "":
		v.Detector, err = detector.LoadScript(opts.ScriptPath, opts.Logger)
	case len(opts.Patterns) > 0:
		v.Detector, err = detector.NewRegex(opts.Patterns...)
	case len(opts.Markers) > 0:
		v.Detector, err = detector.NewSubstring(opts.Markers...)
	default:
		err = fmt.Errorf("%w: custom variant needs markers, patterns or a script", ErrInvalidConfig)
	}
	if err != nil {
		return Variant{}, err
	}

	switch opts.Confirmer {
	case "", "none":
	case "dialog":
		v.Confirmer = confirm.Dialog{Observe: opts.Observe}
	case "navigation":
		target := opts.RedirectTarget
		if target == "" {
			target = defaults.RedirectTarget
		}
		red, err := detector.NewRedirect(target)
		if err != nil {
			return Variant{}, err
		}
		v.Confirmer = confirm.Navigation{Target: red, Observe: opts.Observe}
	case "resample":
		v.Confirmer = confirm.Resample{Exec: exec, Timing: detector.NewTiming(opts.TimingThreshold), Samples: opts.Samples}
	default:
		return Variant{}, fmt.Errorf("%w: unknown confirmer %q", ErrInvalidConfig, opts.Confirmer)
	}
	return v, nil
}
