// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Selector chooses plugins by name.
//
// Patterns use gobwas/glob syntax: '*' matches any run of characters,
// '?' one character, '[a-c]' a class and '{a,b}' alternatives. A Selector
// without patterns matches every name.
type Selector struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// NewSelector compiles patterns. All patterns are compiled before any is
// used, so an invalid pattern yields no Selector.
func NewSelector(patterns ...string) (*Selector, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, fmt.Errorf("pattern %d: empty pattern", i)
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %d (%q): %w", i, pattern, err)
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return &Selector{patterns: compiled}, nil
}

// Match reports whether name is selected.
func (s *Selector) Match(name string) bool {
	if s == nil || len(s.patterns) == 0 {
		return true
	}
	for _, p := range s.patterns {
		if p.glob.Match(name) {
			return true
		}
	}
	return false
}

// Filter returns the selected names, preserving order.
func (s *Selector) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// Patterns returns the source patterns.
func (s *Selector) Patterns() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.pattern
	}
	return out
}
