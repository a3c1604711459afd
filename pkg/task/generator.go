package task

import (
	"iter"
	"slices"
	"strings"
)

// Mode selects which injection points a target offers.
type Mode int

const (
	// ModeQuery yields one point per distinct query parameter. Targets
	// without a query string yield no tasks.
	ModeQuery Mode = iota + 1
	// ModePath yields a single append point per target, payload verbatim.
	ModePath
	// ModePathEscaped is ModePath with the payload percent-encoded.
	ModePathEscaped
)

// ParseMode maps a config name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "query":
		return ModeQuery, true
	case "path":
		return ModePath, true
	case "path-escaped":
		return ModePathEscaped, true
	}
	return 0, false
}

func (m Mode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModePath:
		return "path"
	case ModePathEscaped:
		return "path-escaped"
	}
	return "unknown"
}

// Points returns the injection points of a normalized target.
func (m Mode) Points(target string) []InjectionPoint {
	switch m {
	case ModeQuery:
		keys := QueryKeys(target)
		points := make([]InjectionPoint, 0, len(keys))
		for _, k := range keys {
			points = append(points, InjectionPoint{Kind: KindQuery, Key: k})
		}
		return points
	case ModePath:
		return []InjectionPoint{{Kind: KindPath}}
	case ModePathEscaped:
		return []InjectionPoint{{Kind: KindPath, Escape: true}}
	}
	return nil
}

// Generate lazily yields every task for targets × payloads × points in that
// nesting order. payloads is ranged once per target, so it must be
// restartable. Blank lines are skipped and invalid targets are reported to
// onInvalid (which may be nil) and skipped.
func Generate(targets, payloads iter.Seq[string], mode Mode, onInvalid func(target string, err error)) iter.Seq[ProbeTask] {
	return func(yield func(ProbeTask) bool) {
		var seq uint64
		for raw := range targets {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			target, err := NormalizeTarget(raw)
			if err != nil {
				if onInvalid != nil {
					onInvalid(raw, err)
				}
				continue
			}
			points := mode.Points(target)
			if len(points) == 0 {
				continue
			}
			for payload := range payloads {
				payload = strings.TrimSpace(payload)
				if payload == "" {
					continue
				}
				for _, p := range points {
					t := ProbeTask{Seq: seq, Target: target, Payload: payload, Point: p}
					seq++
					if !yield(t) {
						return
					}
				}
			}
		}
	}
}

// Count consumes seq and returns the number of tasks it yields.
func Count(seq iter.Seq[ProbeTask]) int {
	n := 0
	for range seq {
		n++
	}
	return n
}

// Lines adapts a string slice to a restartable sequence.
func Lines(items []string) iter.Seq[string] {
	return slices.Values(items)
}
