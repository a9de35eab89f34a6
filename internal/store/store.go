// Package store is the schedule database: entries keyed by uid plus an
// inverted slot index that answers "what occurs on this date" by probing a
// handful of buckets instead of evaluating every entry.
package store

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"mhcal/internal/calendar"
	"mhcal/internal/category"
	appLog "mhcal/internal/log"
	"mhcal/internal/recurrence"
	"mhcal/internal/schedule"
)

// DefaultHolidayCategory is the category IsHoliday looks for.
const DefaultHolidayCategory = "Holiday"

// Backend persists mutations. Dir is the on-disk implementation.
type Backend interface {
	Put(e *schedule.Entry) error
	Remove(uid string) error
	Append(c Change) error
}

// Observer receives store activity, typically for metrics.
type Observer interface {
	EntriesChanged(n int)
	Mutated(op Op)
	Searched(elapsed time.Duration, candidates int)
	LoadFailed(n int)
}

// Record is one serialized entry and where it came from.
type Record struct {
	Source string
	Data   []byte
}

// DaySchedule is the result of one day of a range search.
type DaySchedule struct {
	Date    calendar.Date
	Entries []*schedule.Entry
}

// Store is safe for concurrent use. Mutations hold the write lock for
// their whole duration, so readers see an entry either fully indexed or
// not at all.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*schedule.Entry
	idx     *index
	changes []Change

	backend  Backend
	observer Observer
	logger   *appLog.Logger
	now      func() time.Time
	holiday  string
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *appLog.Logger) Option { return func(s *Store) { s.logger = l } }

func WithBackend(b Backend) Option { return func(s *Store) { s.backend = b } }

func WithObserver(o Observer) Option { return func(s *Store) { s.observer = o } }

// WithClock overrides the change log clock.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithHolidayCategory(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.holiday = name
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*schedule.Entry),
		idx:     newIndex(),
		now:     time.Now,
		holiday: DefaultHolidayCategory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert stores e, replacing any entry with the same uid. The store keeps
// its own copy.
func (s *Store) Insert(e *schedule.Entry) error {
	if e == nil || e.UID == "" {
		return ErrEmptyUID
	}
	e = e.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, replacing := s.entries[e.UID]
	if replacing {
		if err := s.idx.check(e.UID); err != nil {
			s.logger.Error("insert aborted", err, "uid", e.UID)
			return err
		}
	}
	if s.backend != nil {
		if err := s.backend.Put(e); err != nil {
			return err
		}
	}
	if replacing {
		s.idx.remove(e.UID)
		s.logger.Debug("replacing entry", "uid", e.UID)
	}
	s.entries[e.UID] = e
	s.idx.add(e.UID, e.SlotKeys())
	s.record(OpModify, e)
	return nil
}

// Delete removes the entry with uid.
func (s *Store) Delete(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[uid]
	if !ok {
		return notFound(uid)
	}
	if err := s.idx.check(uid); err != nil {
		s.logger.Error("delete aborted", err, "uid", uid)
		return err
	}
	if s.backend != nil {
		if err := s.backend.Remove(uid); err != nil {
			return err
		}
	}
	s.idx.remove(uid)
	delete(s.entries, uid)
	s.record(OpDelete, e)
	return nil
}

// record appends to the change log. Called with the write lock held.
func (s *Store) record(op Op, e *schedule.Entry) {
	c := Change{Op: op, Time: s.now(), UID: e.UID, Subject: e.Subject}
	s.changes = append(s.changes, c)
	if s.backend != nil {
		if err := s.backend.Append(c); err != nil {
			s.logger.Error("change log append failed", err, "uid", e.UID)
		}
	}
	s.logger.Info("entry "+op.String(), "uid", e.UID, "subject", e.Subject)
	if s.observer != nil {
		s.observer.Mutated(op)
		s.observer.EntriesChanged(len(s.entries))
	}
}

// FindByUID returns a copy of the entry with uid.
func (s *Store) FindByUID(uid string) (*schedule.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[uid]
	if !ok {
		return nil, notFound(uid)
	}
	return e.Clone(), nil
}

// Search returns the entries occurring on d that pred keeps, ordered by
// start time (all-day entries first) and then uid.
func (s *Store) Search(d calendar.Date, pred category.Predicate) []*schedule.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search(d, pred)
}

func (s *Store) search(d calendar.Date, pred category.Predicate) []*schedule.Entry {
	start := time.Now()
	candidates := s.idx.probe(recurrence.ProbeKeys(d))

	var out []*schedule.Entry
	for uid := range candidates {
		e := s.entries[uid]
		if e == nil || !e.Occurs(d) || !pred.Match(e.Categories) {
			continue
		}
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, compareEntries)

	if s.observer != nil {
		s.observer.Searched(time.Since(start), len(candidates))
	}
	return out
}

func compareEntries(a, b *schedule.Entry) int {
	ta, okA := a.StartTime()
	tb, okB := b.StartTime()
	switch {
	case okA != okB:
		if okA {
			return 1
		}
		return -1
	case okA:
		if c := ta.Compare(tb); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.UID, b.UID)
}

// SearchRange runs Search for every day from..to inclusive.
func (s *Store) SearchRange(from, to calendar.Date, pred category.Predicate) []DaySchedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DaySchedule
	for d := from; !d.After(to); d = d.Succ() {
		out = append(out, DaySchedule{Date: d, Entries: s.search(d, pred)})
	}
	return out
}

// EachEntry returns every distinct entry occurring between from and to,
// in order of first occurrence.
func (s *Store) EachEntry(from, to calendar.Date, pred category.Predicate) []*schedule.Entry {
	seen := make(map[string]bool)
	var out []*schedule.Entry
	for _, day := range s.SearchRange(from, to, pred) {
		for _, e := range day.Entries {
			if !seen[e.UID] {
				seen[e.UID] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// IsHoliday reports whether any holiday-category entry occurs on d.
func (s *Store) IsHoliday(d calendar.Date) bool {
	return len(s.Search(d, category.Any(s.holiday))) > 0
}

// Entries returns copies of all entries ordered by uid.
func (s *Store) Entries() []*schedule.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schedule.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b *schedule.Entry) int { return cmp.Compare(a.UID, b.UID) })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Changes returns the change log recorded since the store was created.
func (s *Store) Changes() []Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.changes)
}

// Load parses and indexes records. A record that fails to parse is
// skipped and its error, carrying the record source, is returned; the
// rest still load. Loading restores state, so nothing is written to the
// backend or the change log.
func (s *Store) Load(records []Record) []error {
	_, errs := s.load(records)
	return errs
}

// loadedRecord ties a loaded uid to the record it was read from.
type loadedRecord struct {
	uid    string
	source string
}

func (s *Store) load(records []Record) ([]loadedRecord, []error) {
	var errs []error
	parsed := make([]*schedule.Entry, 0, len(records))
	sources := make([]string, 0, len(records))
	for _, r := range records {
		e, err := schedule.Parse(r.Data)
		switch {
		case err != nil:
			errs = append(errs, withSource(err, r.Source))
		case e.UID == "":
			errs = append(errs, &calendar.FormatError{Source: r.Source, Field: "X-SC-Record-Id", Msg: "missing record id"})
		default:
			parsed = append(parsed, e)
			sources = append(sources, r.Source)
		}
	}

	var loaded []loadedRecord
	s.mu.Lock()
	for i, e := range parsed {
		if _, ok := s.entries[e.UID]; ok {
			if err := s.idx.check(e.UID); err != nil {
				errs = append(errs, err)
				continue
			}
			s.idx.remove(e.UID)
		}
		s.entries[e.UID] = e
		s.idx.add(e.UID, e.SlotKeys())
		loaded = append(loaded, loadedRecord{uid: e.UID, source: sources[i]})
	}
	n := len(s.entries)
	s.mu.Unlock()

	for _, err := range errs {
		s.logger.Error("record skipped", err)
	}
	s.logger.Info("store loaded", "entries", n, "errors", len(errs))
	if s.observer != nil {
		s.observer.EntriesChanged(n)
		if len(errs) > 0 {
			s.observer.LoadFailed(len(errs))
		}
	}
	return loaded, errs
}

func withSource(err error, source string) error {
	var fe *calendar.FormatError
	if errors.As(err, &fe) {
		c := *fe
		c.Source = source
		return &c
	}
	return &calendar.FormatError{Source: source, Msg: err.Error()}
}

// Verify checks the whole index against the entries: every entry is filed
// under exactly its slot keys and every bucket member exists.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for uid, e := range s.entries {
		if err := s.idx.check(uid); err != nil {
			return err
		}
		want := slices.Clone(e.SlotKeys())
		slices.Sort(want)
		want = slices.Compact(want)
		if !slices.Equal(want, s.idx.keysByUID[uid]) {
			return &IndexCorruptionError{UID: uid, Reason: "filed under stale keys"}
		}
	}
	for key, b := range s.idx.buckets {
		for uid := range b {
			if _, ok := s.entries[uid]; !ok {
				return &IndexCorruptionError{UID: uid, Key: key, Reason: "bucket holds unknown uid"}
			}
		}
	}
	if len(s.idx.keysByUID) != len(s.entries) {
		return &IndexCorruptionError{Reason: "index and entry counts differ"}
	}
	return nil
}
