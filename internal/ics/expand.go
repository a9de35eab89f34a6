package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"mhcal/internal/calendar"
	appLog "mhcal/internal/log"
	"mhcal/internal/model"
	"mhcal/internal/schedule"
)

const defaultMaxOccurrencesPerEntry = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location is where occurrence start/end times are placed. Nil means
	// time.Local.
	Location *time.Location

	// From / To bound the expansion, inclusive.
	From calendar.Date
	To   calendar.Date

	// MaxOccurrencesPerEntry caps runaway expansions. Zero means
	// defaultMaxOccurrencesPerEntry.
	MaxOccurrencesPerEntry int
}

// ExpandResult holds the occurrences of a batch of entries.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// Truncated lists uids that hit MaxOccurrencesPerEntry.
	Truncated []string
}

// RuleSet builds the rrule set equivalent to e: its condition as the
// RRULE, explicit dates inside the duration as RDATEs and exceptions as
// EXDATEs, all at midnight UTC.
func RuleSet(e *schedule.Entry, from calendar.Date) (*rrule.Set, error) {
	set := &rrule.Set{}
	start := from
	if lo, ok := e.Duration.Lower(); ok && lo.After(start) {
		start = lo
	}

	if opt, ok := RuleOption(e.Cond, e.Duration, time.UTC); ok {
		opt.Dtstart = start.Time(time.UTC)
		r, err := rrule.NewRRule(opt)
		if err != nil {
			return nil, err
		}
		set.RRule(r)
	}
	for _, d := range e.Dates.Dates() {
		if e.Duration.Contains(d) {
			set.RDate(d.Time(time.UTC))
		}
	}
	for _, d := range e.Exceptions.Dates() {
		set.ExDate(d.Time(time.UTC))
	}
	return set, nil
}

// OccurrenceDates lists the dates from..to on which e occurs, computed by
// rrule expansion rather than by schedule.Entry.Occurs.
func OccurrenceDates(e *schedule.Entry, from, to calendar.Date) ([]calendar.Date, error) {
	if to.Before(from) {
		return nil, errors.New("expand: to is before from")
	}
	set, err := RuleSet(e, from)
	if err != nil {
		return nil, err
	}
	var out []calendar.Date
	for _, t := range set.Between(from.Time(time.UTC), to.Time(time.UTC), true) {
		out = append(out, calendar.DateOf(t))
	}
	return out, nil
}

// Occurrences expands a single entry into concrete occurrences.
func Occurrences(e *schedule.Entry, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEntry <= 0 {
		cfg.MaxOccurrencesPerEntry = defaultMaxOccurrencesPerEntry
	}
	dates, err := OccurrenceDates(e, cfg.From, cfg.To)
	if err != nil {
		return nil, false, err
	}
	hitCap := false
	if len(dates) > cfg.MaxOccurrencesPerEntry {
		dates = dates[:cfg.MaxOccurrencesPerEntry]
		hitCap = true
	}
	out := make([]model.Occurrence, 0, len(dates))
	for _, d := range dates {
		out = append(out, model.NewOccurrence(e, d, cfg.Location))
	}
	return out, hitCap, nil
}

// Expand runs Occurrences over a batch. Entries whose rule cannot be
// built are logged and skipped.
func Expand(entries []*schedule.Entry, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult
	if cfg.To.Before(cfg.From) {
		return result, errors.New("expand: to is before from")
	}
	for _, e := range entries {
		occ, hitCap, err := Occurrences(e, cfg)
		if err != nil {
			appLog.Error("expand: failed to build rule", err, "uid", e.UID)
			continue
		}
		if hitCap {
			result.Truncated = append(result.Truncated, e.UID)
			appLog.Error("expand: truncated occurrences due to cap",
				errors.New("max occurrences reached"),
				"uid", e.UID,
				"cap", cfg.MaxOccurrencesPerEntry,
			)
		}
		result.Occurrences = append(result.Occurrences, occ...)
	}
	model.SortOccurrences(result.Occurrences)
	return result, nil
}
