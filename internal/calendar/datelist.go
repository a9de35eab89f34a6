package calendar

import (
	"slices"
	"strings"
)

// DateList is an ordered set of dates.
type DateList struct {
	dates []Date
}

// NewDateList sorts and de-duplicates ds.
func NewDateList(ds ...Date) DateList {
	out := slices.Clone(ds)
	slices.SortFunc(out, Date.Compare)
	return DateList{dates: slices.Compact(out)}
}

// ParseDateList parses whitespace separated tokens. Only tokens carrying
// prefix are taken when prefix is non-empty, and only tokens without the
// "!" exception marker when it is empty; this is how a single X-SC-Day
// value is split into dates and exceptions.
func ParseDateList(s, prefix string) (DateList, error) {
	var ds []Date
	for _, tok := range strings.Fields(s) {
		if prefix != "" {
			if !strings.HasPrefix(tok, prefix) {
				continue
			}
			tok = strings.TrimPrefix(tok, prefix)
		} else if strings.HasPrefix(tok, ExceptionPrefix) {
			continue
		}
		d, err := ParseDate(tok)
		if err != nil {
			return DateList{}, err
		}
		ds = append(ds, d)
	}
	return NewDateList(ds...), nil
}

// ExceptionPrefix marks an exception date inside an X-SC-Day value.
const ExceptionPrefix = "!"

func (l DateList) Len() int { return len(l.dates) }

// Dates returns a copy of the dates in ascending order.
func (l DateList) Dates() []Date { return slices.Clone(l.dates) }

func (l DateList) Contains(d Date) bool {
	_, found := slices.BinarySearchFunc(l.dates, d, Date.Compare)
	return found
}

// Add returns a list with d included.
func (l DateList) Add(d Date) DateList {
	i, found := slices.BinarySearchFunc(l.dates, d, Date.Compare)
	if found {
		return l
	}
	return DateList{dates: slices.Insert(slices.Clone(l.dates), i, d)}
}

// FirstFrom returns the smallest date >= from.
func (l DateList) FirstFrom(from Date) (Date, bool) {
	i, _ := slices.BinarySearchFunc(l.dates, from, Date.Compare)
	if i >= len(l.dates) {
		return Date{}, false
	}
	return l.dates[i], true
}

// Format encodes the list with every item prefixed by prefix.
func (l DateList) Format(prefix string) string {
	parts := make([]string, len(l.dates))
	for i, d := range l.dates {
		parts[i] = prefix + d.String()
	}
	return strings.Join(parts, " ")
}

func (l DateList) String() string { return l.Format("") }
