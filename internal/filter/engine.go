// Package filter implements the noise-element matching engine.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks an ignore pattern as a regular expression.
const RegexPrefix = "re:"

// Noise decides whether an element is noise based on its attribute values.
// Plain patterns match as case-insensitive substrings; patterns starting
// with RegexPrefix are case-insensitive regular expressions.
type Noise struct {
	words   []string
	regexes []*regexp.Regexp
}

// Compile builds a Noise matcher from ignore patterns.
// Blank patterns are skipped.
func Compile(patterns []string) (*Noise, error) {
	n := &Noise{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if expr, ok := strings.CutPrefix(p, RegexPrefix); ok {
			re, err := compileRegex(expr)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", p, err)
			}
			n.regexes = append(n.regexes, re)
			continue
		}
		n.words = append(n.words, strings.ToLower(p))
	}
	return n, nil
}

// Empty reports whether the matcher has no patterns.
func (n *Noise) Empty() bool {
	return n == nil || len(n.words) == 0 && len(n.regexes) == 0
}

// Match reports whether any of the given attribute values matches a pattern.
// Empty values never match.
func (n *Noise) Match(values ...string) bool {
	if n.Empty() {
		return false
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		for _, w := range n.words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		for _, re := range n.regexes {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// ValidatePattern checks whether a single ignore pattern is usable.
func ValidatePattern(pattern string) error {
	if expr, ok := strings.CutPrefix(strings.TrimSpace(pattern), RegexPrefix); ok {
		_, err := compileRegex(expr)
		return err
	}
	return nil
}

func compileRegex(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}
