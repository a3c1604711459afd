// Package regexcache provides a thread-safe cache for compiled regular expressions.
// Detectors built from the same pattern list share one compiled program.
//
// Usage:
//
//	re, err := regexcache.Get(`root:[x*]:0:0:`)
//	if err != nil {
//	    // handle error
//	}
//	if m := re.FindString(body); m != "" { ... }
package regexcache

import (
	"fmt"
	"regexp"
	"sync"
)

var cache sync.Map // map[string]*regexp.Regexp

// Get returns a compiled regexp for the given pattern, compiling and caching
// it on first use.
func Get(pattern string) (*regexp.Regexp, error) {
	if cached, ok := cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// MustGet returns a compiled regexp for the given pattern.
// It panics if the pattern is invalid.
func MustGet(pattern string) *regexp.Regexp {
	re, err := Get(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

// Compile resolves every pattern, failing on the first invalid one.
func Compile(patterns ...string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := Get(p)
		if err != nil {
			return nil, fmt.Errorf("regexcache: pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// FirstMatch returns the first match of any regexp in s, in list order.
func FirstMatch(res []*regexp.Regexp, s string) (string, bool) {
	for _, re := range res {
		if loc := re.FindStringIndex(s); loc != nil {
			return s[loc[0]:loc[1]], true
		}
	}
	return "", false
}

// Clear removes all cached regular expressions. Used by tests.
func Clear() {
	cache.Range(func(key, _ any) bool {
		cache.Delete(key)
		return true
	})
}

// Size returns the number of cached regular expressions.
func Size() int {
	count := 0
	cache.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
