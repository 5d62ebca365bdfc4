package plate

import (
	"fmt"
	"regexp"
	"strings"
)

// MinLength is the shortest cleaned string that can be a plate.
const MinLength = 6

// DefaultPatterns are the recognised plate shapes, tested in order.
var DefaultPatterns = []string{
	`^\d{2}[A-Z]\d{4,5}$`,         // 51A1234, 51A12345
	`^\d{2}[A-Z]\d{3}[A-Z]\d{2}$`, // 51A123A12
	`^\d{2}[A-Z]\d{2}[A-Z]\d{3}$`, // 51A12A123
	`^\d{2}[A-Z]\d{4}$`,           // 51A1234
	`^\d{2}[A-Z]\d{3}$`,           // 51A123
}

// Normalize uppercases s and drops everything but Latin letters and digits.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matcher decides whether a text region has the shape of a plate.
// A Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles patterns in order. With no patterns DefaultPatterns are used.
func NewMatcher(patterns ...string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile plate pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Matcher{patterns: compiled}, nil
}

// MustNewMatcher is like NewMatcher but panics on an invalid pattern.
func MustNewMatcher(patterns ...string) *Matcher {
	m, err := NewMatcher(patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether raw, once normalized, matches one of the patterns.
func (m *Matcher) Match(raw string) bool {
	_, ok := m.MatchIndex(raw)
	return ok
}

// MatchIndex returns the index of the first pattern matching raw.
func (m *Matcher) MatchIndex(raw string) (int, bool) {
	cleaned := Normalize(raw)
	if len(cleaned) < MinLength {
		return -1, false
	}

	for i, re := range m.patterns {
		if re.MatchString(cleaned) {
			return i, true
		}
	}
	return -1, false
}
