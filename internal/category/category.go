// Package category builds the category filter handed to store searches.
package category

import "strings"

// Predicate decides whether an entry with the given categories is kept.
// A nil Predicate keeps everything.
type Predicate func(categories []string) bool

// Parse turns a whitespace separated list of category names into a
// Predicate that keeps entries carrying any of them, compared without
// case. A "!" anywhere in expr inverts the result. An expression with no
// names yields nil.
func Parse(expr string) Predicate {
	invert := strings.Contains(expr, "!")
	names := strings.Fields(strings.ReplaceAll(expr, "!", " "))
	if len(names) == 0 {
		return nil
	}
	return func(categories []string) bool {
		return anyOf(names, categories) != invert
	}
}

// Any keeps entries carrying at least one of names.
func Any(names ...string) Predicate {
	names = append([]string(nil), names...)
	return func(categories []string) bool { return anyOf(names, categories) }
}

// Not inverts p. Not(nil) rejects everything.
func Not(p Predicate) Predicate {
	return func(categories []string) bool { return !p.Match(categories) }
}

// Match applies p, treating a nil Predicate as always true.
func (p Predicate) Match(categories []string) bool {
	return p == nil || p(categories)
}

func anyOf(names, categories []string) bool {
	for _, c := range categories {
		for _, n := range names {
			if strings.EqualFold(c, n) {
				return true
			}
		}
	}
	return false
}
