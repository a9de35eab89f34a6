// Package alarm derives pending reminders from the schedule store and
// delivers them when they fall due.
package alarm

import (
	"slices"
	"sync"
	"time"

	"mhcal/internal/calendar"
	"mhcal/internal/category"
	"mhcal/internal/schedule"
)

// DefaultLookAheadDays is how far ahead the table is built.
const DefaultLookAheadDays = 100

// Searcher is the one store operation the table needs.
type Searcher interface {
	Search(d calendar.Date, pred category.Predicate) []*schedule.Entry
}

// Alarm is one reminder for one occurrence.
type Alarm struct {
	At    time.Time // when the reminder fires
	Event time.Time // when the occurrence starts
	Entry *schedule.Entry
}

// Key identifies the occurrence an alarm belongs to.
func (a Alarm) Key() string {
	return a.Entry.UID + "/" + calendar.DateOf(a.Event).String()
}

// Table is the sorted set of pending alarms.
type Table struct {
	searcher  Searcher
	loc       *time.Location
	lookAhead int
	pred      category.Predicate

	mu     sync.Mutex
	alarms []Alarm
	built  bool
	// firedUntil is the latest instant passed to Due.
	firedUntil time.Time
}

type Option func(*Table)

func WithLocation(loc *time.Location) Option { return func(t *Table) { t.loc = loc } }

// WithLookAhead sets the window in days; values below one are ignored.
func WithLookAhead(days int) Option {
	return func(t *Table) {
		if days > 0 {
			t.lookAhead = days
		}
	}
}

// WithPredicate restricts alarms to entries the predicate accepts.
func WithPredicate(p category.Predicate) Option { return func(t *Table) { t.pred = p } }

func NewTable(s Searcher, opts ...Option) *Table {
	t := &Table{searcher: s, loc: time.Local, lookAhead: DefaultLookAheadDays}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Rebuild recomputes the table from the store for the window starting on
// now's date. The first build keeps alarms whose time has passed while
// their occurrence has not started yet, so they fire on the next Due.
// Later builds keep only alarms that have not been delivered.
func (t *Table) Rebuild(now time.Time) int {
	now = now.In(t.loc)
	today := calendar.DateOf(now)

	var next []Alarm
	for i := 0; i <= t.lookAhead; i++ {
		d := today.AddDays(i)
		for _, e := range t.searcher.Search(d, t.pred) {
			if !e.Alarm.IsSet() {
				continue
			}
			start := calendar.NewTimeOfDay(0, 0)
			if lo, ok := e.StartTime(); ok {
				start = lo
			}
			event := start.On(d, t.loc)
			next = append(next, Alarm{At: event.Add(-e.Alarm.Duration()), Event: event, Entry: e})
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	keep := next[:0]
	for _, a := range next {
		if !t.built {
			if a.Event.Before(now) {
				continue
			}
		} else if !a.At.After(t.firedUntil) {
			continue
		}
		keep = append(keep, a)
	}
	sortAlarms(keep)
	t.alarms = keep
	t.built = true
	return len(keep)
}

// Due removes and returns every alarm whose time is at or before now.
func (t *Table) Due(now time.Time) []Alarm {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.firedUntil) {
		t.firedUntil = now
	}
	n := 0
	for n < len(t.alarms) && !t.alarms[n].At.After(now) {
		n++
	}
	due := slices.Clone(t.alarms[:n])
	t.alarms = slices.Delete(t.alarms, 0, n)
	return due
}

// Pending returns a copy of the table.
func (t *Table) Pending() []Alarm {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.alarms)
}

// Next returns the earliest pending alarm.
func (t *Table) Next() (Alarm, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.alarms) == 0 {
		return Alarm{}, false
	}
	return t.alarms[0], true
}

func sortAlarms(as []Alarm) {
	slices.SortFunc(as, func(a, b Alarm) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		if c := a.Event.Compare(b.Event); c != 0 {
			return c
		}
		switch {
		case a.Entry.UID < b.Entry.UID:
			return -1
		case a.Entry.UID > b.Entry.UID:
			return 1
		}
		return 0
	})
}
