// Package detect holds the ordered pattern sets used to recognise agent
// activity in decoded log messages: tool calls, session state changes and
// run lifecycle markers.
//
// Upstream log phrasing drifts between gateway versions, so each category is
// a list of named rules tried top to bottom rather than one large regex. New
// phrasings are added as new rules.
package detect

import (
	"regexp"
)

// Rule is a named detector plus an extractor for its typed result.
type Rule[T any] struct {
	Name    string
	Pattern *regexp.Regexp

	// Extract builds the result from the message and the submatches of
	// Pattern. Returning false lets the next rule try.
	Extract func(msg string, groups []string) (T, bool)
}

// MustRule compiles pattern, panicking on error.
// Use for known-good patterns at initialization.
func MustRule[T any](name, pattern string, extract func(msg string, groups []string) (T, bool)) Rule[T] {
	return Rule[T]{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),
		Extract: extract,
	}
}

// Match applies a single rule.
func (r Rule[T]) Match(msg string) (T, bool) {
	var zero T
	groups := r.Pattern.FindStringSubmatch(msg)
	if groups == nil {
		return zero, false
	}
	return r.Extract(msg, groups)
}

// RuleSet is an ordered list of rules. The first rule that matches wins.
type RuleSet[T any] []Rule[T]

// Match returns the result of the first matching rule and its name.
func (rs RuleSet[T]) Match(msg string) (T, string, bool) {
	for _, r := range rs {
		if v, ok := r.Match(msg); ok {
			return v, r.Name, true
		}
	}
	var zero T
	return zero, "", false
}

// Names lists the rule names in priority order.
func (rs RuleSet[T]) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

// AnyOf is a predicate set: it matches when any of its patterns matches.
type AnyOf []*regexp.Regexp

// MustAnyOf compiles the patterns, panicking on error.
func MustAnyOf(patterns ...string) AnyOf {
	set := make(AnyOf, len(patterns))
	for i, p := range patterns {
		set[i] = regexp.MustCompile(p)
	}
	return set
}

// Match reports whether msg matches any pattern in the set.
func (a AnyOf) Match(msg string) bool {
	for _, re := range a {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}
