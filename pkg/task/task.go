// Package task generates probe tasks: the lazy cross product of targets,
// payloads and the injection points each target offers.
package task

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidTarget is returned when a target cannot be parsed as a URL.
var ErrInvalidTarget = errors.New("task: invalid target")

// Kind identifies where a payload is placed in the request.
type Kind int

const (
	// KindQuery replaces the value of one query parameter.
	KindQuery Kind = iota + 1
	// KindPath appends the payload to the end of the target URL.
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindPath:
		return "path"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// InjectionPoint is one place in a target where a payload can go.
type InjectionPoint struct {
	Kind Kind `json:"kind"`

	// Key is the query parameter name for KindQuery.
	Key string `json:"key,omitempty"`

	// Escape percent-encodes an appended payload, keeping '/' separators.
	Escape bool `json:"escape,omitempty"`
}

func (p InjectionPoint) String() string {
	if p.Kind == KindQuery {
		return "query:" + p.Key
	}
	return p.Kind.String()
}

// ProbeTask is a single (target, payload, injection point) combination.
// Seq is the task's position in generation order, starting at 0.
type ProbeTask struct {
	Seq     uint64         `json:"seq"`
	Target  string         `json:"target"`
	Payload string         `json:"payload"`
	Point   InjectionPoint `json:"point"`
}

// URL builds the concrete request URL with the payload applied.
func (t ProbeTask) URL() (string, error) {
	switch t.Point.Kind {
	case KindQuery:
		return substituteQuery(t.Target, t.Point.Key, t.Payload)
	case KindPath:
		if t.Point.Escape {
			return t.Target + escapePath(t.Payload), nil
		}
		return t.Target + t.Payload, nil
	default:
		return "", fmt.Errorf("task: unknown injection kind %v", t.Point.Kind)
	}
}

// Key identifies the task independently of its sequence number.
func (t ProbeTask) Key() string {
	return t.Target + "\x00" + t.Point.String() + "\x00" + t.Payload
}

// NormalizeTarget trims the target and defaults a missing scheme to http.
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidTarget, raw)
	}
	return raw, nil
}

// queryPair is one raw key=value element of a query string, decoded.
type queryPair struct {
	key, value string
}

func parseQuery(raw string) []queryPair {
	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		if k == "" {
			continue
		}
		pairs = append(pairs, queryPair{key: k, value: v})
	}
	return pairs
}

// QueryKeys returns the distinct query parameter names of target in order
// of first appearance.
func QueryKeys(target string) []string {
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var keys []string
	for _, p := range parseQuery(u.RawQuery) {
		if !seen[p.key] {
			seen[p.key] = true
			keys = append(keys, p.key)
		}
	}
	return keys
}

// substituteQuery sets key to payload (dropping repeated occurrences of key)
// and re-encodes the whole query form-style.
func substituteQuery(target, key, payload string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}

	var b strings.Builder
	replaced := false
	for _, p := range parseQuery(u.RawQuery) {
		value := p.value
		if p.key == key {
			if replaced {
				continue
			}
			replaced = true
			value = payload
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}
	if !replaced {
		return "", fmt.Errorf("task: %q has no query parameter %q", target, key)
	}

	u.RawQuery = b.String()
	u.ForceQuery = false
	return u.String(), nil
}

func escapePath(payload string) string {
	segments := strings.Split(payload, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
