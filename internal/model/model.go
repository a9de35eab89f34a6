package model

import (
	"slices"
	"time"

	"mhcal/internal/calendar"
	"mhcal/internal/schedule"
)

// Occurrence represents a single concrete instance of an entry on one
// date, placed in the display timezone.
type Occurrence struct {
	UID string `json:"uid"`

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// entry: the uid plus the occurrence date.
	InstanceKey string `json:"instance_key"`

	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Location    string   `json:"location,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	AllDay    bool `json:"all_day"`
	Recurring bool `json:"recurring"`

	// Start / End are in the configured display timezone. All-day
	// occurrences run from midnight to the next midnight.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewOccurrence builds the instance of e on d. A time range without an
// upper bound yields a zero-length occurrence.
func NewOccurrence(e *schedule.Entry, d calendar.Date, loc *time.Location) Occurrence {
	if loc == nil {
		loc = time.Local
	}
	o := Occurrence{
		UID:         e.UID,
		InstanceKey: e.UID + "/" + d.String(),
		Summary:     e.Subject,
		Description: e.Body,
		Location:    e.Location,
		Categories:  slices.Clone(e.Categories),
		Recurring:   e.IsRecurring(),
	}

	lo, ok := e.Time.Lower()
	if !ok {
		o.AllDay = true
		o.Start = d.Time(loc)
		o.End = d.Succ().Time(loc)
		return o
	}
	o.Start = lo.On(d, loc)
	o.End = o.Start
	if hi, ok := e.Time.Upper(); ok {
		o.End = hi.On(d, loc)
	}
	return o
}

// SortOccurrences orders by start time, all-day first on ties, then uid.
func SortOccurrences(occ []Occurrence) {
	slices.SortStableFunc(occ, func(a, b Occurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		if a.AllDay != b.AllDay {
			if a.AllDay {
				return -1
			}
			return 1
		}
		if a.UID < b.UID {
			return -1
		}
		if a.UID > b.UID {
			return 1
		}
		return 0
	})
}
