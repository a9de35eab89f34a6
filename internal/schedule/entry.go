// Package schedule defines the stored calendar Entry, decides on which
// dates it occurs, and reads and writes its X-SC record format.
package schedule

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
)

// Epoch is where the first-occurrence search starts for entries without a
// duration lower bound.
var Epoch = calendar.MustDate(2000, time.January, 1)

// firstOccurrenceHorizon bounds the forward search of an open-ended rule:
// the Gregorian calendar repeats every 400 years.
const firstOccurrenceHorizon = 146097

// TodoCategory marks entries that are tasks rather than dated events.
const TodoCategory = "Todo"

// Entry is one calendar record, recurring or not. Stored entries are only
// ever replaced as a whole.
type Entry struct {
	UID      string
	Subject  string
	Location string
	Body     string

	Dates      calendar.DateList
	Exceptions calendar.DateList
	Time       calendar.TimeRange
	Cond       recurrence.Condition
	Duration   calendar.DateRange

	Categories []string
	Priority   *int
	Alarm      calendar.LeadTime

	// Headers holds non X-SC- header lines, re-emitted verbatim.
	Headers []string

	recordID string
}

// NewUID returns a fresh globally unique record id.
func NewUID() string {
	return uuid.NewString()
}

// Occurs reports whether the entry is active on d: inside its duration,
// not an exception, and either listed explicitly or matched by its
// recurrence condition. Exceptions win over explicit dates.
func (e *Entry) Occurs(d calendar.Date) bool {
	if !e.Duration.Contains(d) || e.Exceptions.Contains(d) {
		return false
	}
	return e.Dates.Contains(d) || e.Cond.Matches(d)
}

// FirstOccurrence returns the earliest date on which the entry occurs,
// searching from its duration lower bound, or from Epoch when unbounded.
func (e *Entry) FirstOccurrence() (calendar.Date, bool) {
	start := Epoch
	if lo, ok := e.Duration.Lower(); ok {
		start = lo
	}

	var best calendar.Date
	found := false
	for _, d := range e.Dates.Dates() {
		if d.Before(start) {
			continue
		}
		if e.Occurs(d) {
			best, found = d, true
			break
		}
	}
	if e.Cond.Class() == recurrence.ClassNone {
		return best, found
	}

	end := start.AddDays(firstOccurrenceHorizon)
	if hi, ok := e.Duration.Upper(); ok && hi.Before(end) {
		end = hi
	}
	if found && best.Before(end) {
		end = best
	}
	for d := start; !d.After(end); d = d.Succ() {
		if e.Cond.Matches(d) && e.Occurs(d) {
			return d, true
		}
	}
	return best, found
}

// IsRecurring reports whether the entry has a recurrence class.
func (e *Entry) IsRecurring() bool {
	return e.Cond.Class() != recurrence.ClassNone
}

// SlotKeys returns the generative keys the entry is filed under: one per
// explicit date plus the shape keys of its condition.
func (e *Entry) SlotKeys() []recurrence.SlotKey {
	keys := make([]recurrence.SlotKey, 0, e.Dates.Len()+4)
	for _, d := range e.Dates.Dates() {
		keys = append(keys, recurrence.DateKey(d))
	}
	keys = append(keys, e.Cond.ShapeKeys()...)
	return keys
}

// HasCategory compares case-insensitively.
func (e *Entry) HasCategory(name string) bool {
	return slices.ContainsFunc(e.Categories, func(c string) bool {
		return strings.EqualFold(c, name)
	})
}

func (e *Entry) IsTodo() bool { return e.HasCategory(TodoCategory) }

// StartTime returns the lower bound of the time range; all-day entries
// report false.
func (e *Entry) StartTime() (calendar.TimeOfDay, bool) {
	return e.Time.Lower()
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Categories = slices.Clone(e.Categories)
	c.Headers = slices.Clone(e.Headers)
	if e.Priority != nil {
		p := *e.Priority
		c.Priority = &p
	}
	// DateList values are copy-on-write.
	return &c
}
