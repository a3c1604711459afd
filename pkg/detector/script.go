package detector

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/lostsec/lostsec/pkg/finding"
	"github.com/lostsec/lostsec/pkg/probe"
	"github.com/lostsec/lostsec/pkg/task"
)

// scriptModules are the only Tengo stdlib modules available to detector
// scripts. No file, network or OS access.
var scriptModules = stdlib.GetModuleMap("text", "fmt", "math", "times")

// Script runs a user-supplied Tengo script. The script must define
//
//	classify := func(status, body, payload, location, elapsed_ms) { ... }
//
// returning "vulnerable", "potential" or anything else for not vulnerable.
// An optional evidence string may be returned as "vulnerable:<evidence>".
type Script struct {
	name     string
	compiled *tengo.Compiled
	logger   *slog.Logger
}

// LoadScript reads and compiles a detector script from path.
func LoadScript(path string, logger *slog.Logger) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read detector script %s: %w", path, err)
	}
	return NewScript(path, src, logger)
}

// NewScript compiles src once. Each Classify call runs a clone.
func NewScript(name string, src []byte, logger *slog.Logger) (*Script, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wrapper := fmt.Sprintf(`%s
__result__ := classify(__status__, __body__, __payload__, __location__, __elapsed_ms__)
`, string(src))

	s := tengo.NewScript([]byte(wrapper))
	s.SetImports(scriptModules)
	s.SetMaxAllocs(10_000_000)
	for k, v := range map[string]any{
		"__status__":     0,
		"__body__":       "",
		"__payload__":    "",
		"__location__":   "",
		"__elapsed_ms__": 0,
	} {
		if err := s.Add(k, v); err != nil {
			return nil, fmt.Errorf("detector script %s: %w", name, err)
		}
	}

	compiled, err := s.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile detector script %s: %w", name, err)
	}
	return &Script{name: name, compiled: compiled, logger: logger}, nil
}

func (d *Script) Name() string { return "script" }

func (d *Script) Classify(t task.ProbeTask, out probe.Outcome) (v finding.Verdict) {
	if pv, done := precheck(out); done {
		return pv
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("detector script panicked", slog.String("script", d.name), slog.Any("panic", r))
			v = finding.Failed(fmt.Errorf("%w: script panic: %v", ErrDetection, r))
		}
	}()

	c := d.compiled.Clone()
	vars := map[string]any{
		"__status__":     out.StatusCode,
		"__body__":       out.Body,
		"__payload__":    t.Payload,
		"__location__":   out.Location,
		"__elapsed_ms__": out.Elapsed.Milliseconds(),
	}
	for k, val := range vars {
		if err := c.Set(k, val); err != nil {
			return finding.Failed(fmt.Errorf("%w: %v", ErrDetection, err))
		}
	}
	if err := c.Run(); err != nil {
		d.logger.Warn("detector script failed", slog.String("script", d.name), slog.String("error", err.Error()))
		return finding.Failed(fmt.Errorf("%w: %v", ErrDetection, err))
	}

	res := c.Get("__result__")
	if res.IsUndefined() {
		return finding.Clean()
	}
	status, evidence, _ := strings.Cut(res.String(), ":")
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "vulnerable":
		return finding.Confirmed(evidence)
	case "potential":
		return finding.Suspect(evidence)
	default:
		return finding.Clean()
	}
}
