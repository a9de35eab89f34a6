package calendar

import "strings"

const rangeSeparator = "-"

// Bound is what a Range can be built over.
type Bound[T any] interface {
	Compare(T) int
	String() string
}

// Range is an interval with independently optional bounds. An absent bound
// is open.
type Range[T Bound[T]] struct {
	lower, upper       T
	hasLower, hasUpper bool
}

type (
	DateRange = Range[Date]
	TimeRange = Range[TimeOfDay]
)

// Between returns [lo, hi].
func Between[T Bound[T]](lo, hi T) Range[T] {
	return Range[T]{lower: lo, upper: hi, hasLower: true, hasUpper: true}
}

// From returns [lo, +inf).
func From[T Bound[T]](lo T) Range[T] {
	return Range[T]{lower: lo, hasLower: true}
}

// Until returns (-inf, hi].
func Until[T Bound[T]](hi T) Range[T] {
	return Range[T]{upper: hi, hasUpper: true}
}

func (r Range[T]) Lower() (T, bool) { return r.lower, r.hasLower }
func (r Range[T]) Upper() (T, bool) { return r.upper, r.hasUpper }

// IsEmpty reports whether neither bound is set (the range covers everything).
func (r Range[T]) IsEmpty() bool { return !r.hasLower && !r.hasUpper }

// Unbounded reports whether at least one bound is absent.
func (r Range[T]) Unbounded() bool { return !r.hasLower || !r.hasUpper }

// Contains is true iff every present bound is satisfied.
func (r Range[T]) Contains(x T) bool {
	if r.hasLower && x.Compare(r.lower) < 0 {
		return false
	}
	if r.hasUpper && x.Compare(r.upper) > 0 {
		return false
	}
	return true
}

// String encodes "A-B", "A" when both bounds are equal, "A-", "-B", or "".
func (r Range[T]) String() string {
	first, last := "", ""
	if r.hasLower {
		first = r.lower.String()
	}
	if r.hasUpper {
		last = r.upper.String()
	}
	if first == last {
		return first
	}
	return first + rangeSeparator + last
}

func parseRange[T Bound[T]](s string, parse func(string) (T, error)) (Range[T], error) {
	var r Range[T]
	s = strings.TrimSpace(s)
	if s == "" {
		return r, nil
	}
	first, last, ok := strings.Cut(s, rangeSeparator)
	if !ok {
		// A single "A" means "A-A".
		last = first
	}
	if first != "" {
		v, err := parse(first)
		if err != nil {
			return Range[T]{}, err
		}
		r.lower, r.hasLower = v, true
	}
	if last != "" {
		v, err := parse(last)
		if err != nil {
			return Range[T]{}, err
		}
		r.upper, r.hasUpper = v, true
	}
	if r.hasLower && r.hasUpper && r.lower.Compare(r.upper) > 0 {
		return Range[T]{}, formatErr("range", s, "lower bound after upper bound")
	}
	return r, nil
}

// ParseDateRange parses a range of YYYYMMDD dates.
func ParseDateRange(s string) (DateRange, error) {
	return parseRange(s, ParseDate)
}

// ParseTimeRange parses a range of HH:MM times.
func ParseTimeRange(s string) (TimeRange, error) {
	return parseRange(s, ParseTimeOfDay)
}
