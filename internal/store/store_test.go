package store

import (
	"errors"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhcal/internal/calendar"
	"mhcal/internal/category"
	"mhcal/internal/recurrence"
	"mhcal/internal/schedule"
)

func date(y int, m time.Month, d int) calendar.Date {
	return calendar.MustDate(y, m, d)
}

func uids(es []*schedule.Entry) []string {
	var out []string
	for _, e := range es {
		out = append(out, e.UID)
	}
	return out
}

func fixedClock() func() time.Time {
	ts := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestSearchFindsOneOffAndRecurring(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(&schedule.Entry{
		UID:   "dentist",
		Dates: calendar.NewDateList(date(2024, time.January, 7)),
		Time:  calendar.Between(calendar.NewTimeOfDay(15, 0), calendar.NewTimeOfDay(16, 0)),
	}))
	require.NoError(t, s.Insert(&schedule.Entry{
		UID:      "church",
		Cond:     recurrence.MustParse("Sun"),
		Duration: calendar.Between(date(2024, time.January, 1), date(2024, time.December, 31)),
		Time:     calendar.Between(calendar.NewTimeOfDay(10, 0), calendar.NewTimeOfDay(11, 0)),
	}))
	require.NoError(t, s.Insert(&schedule.Entry{
		UID:  "holiday",
		Cond: recurrence.MustParse("Jan"),
	}))

	assert.Equal(t, []string{"holiday", "church", "dentist"}, uids(s.Search(date(2024, time.January, 7), nil)))
	assert.Equal(t, []string{"holiday"}, uids(s.Search(date(2024, time.January, 8), nil)))
	assert.Empty(t, s.Search(date(2024, time.February, 4), nil))
	assert.NoError(t, s.Verify())
}

func TestSearchAppliesCategoryPredicate(t *testing.T) {
	s := New()
	d := date(2024, time.May, 1)
	require.NoError(t, s.Insert(&schedule.Entry{UID: "a", Dates: calendar.NewDateList(d), Categories: []string{"Work"}}))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "b", Dates: calendar.NewDateList(d), Categories: []string{"Private"}}))

	assert.Equal(t, []string{"a"}, uids(s.Search(d, category.Parse("work"))))
	assert.Equal(t, []string{"b"}, uids(s.Search(d, category.Parse("!work"))))
	assert.Equal(t, []string{"a", "b"}, uids(s.Search(d, nil)))
}

func TestInsertRejectsEmptyUID(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Insert(&schedule.Entry{}), ErrEmptyUID)
	assert.ErrorIs(t, s.Insert(nil), ErrEmptyUID)
}

func TestReinsertIsIdempotent(t *testing.T) {
	s := New()
	e := &schedule.Entry{UID: "x", Cond: recurrence.MustParse("2nd Tue"), Dates: calendar.NewDateList(date(2024, time.March, 1))}
	require.NoError(t, s.Insert(e))
	once := s.Search(date(2024, time.March, 12), nil)
	memberships := s.idx.memberships()

	require.NoError(t, s.Insert(e))
	assert.Equal(t, once, s.Search(date(2024, time.March, 12), nil))
	assert.Equal(t, memberships, s.idx.memberships())
	assert.Equal(t, 1, s.Len())
	assert.NoError(t, s.Verify())
}

func TestReinsertReplacesOldKeys(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(&schedule.Entry{UID: "x", Cond: recurrence.MustParse("Mon")}))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "x", Cond: recurrence.MustParse("Tue")}))

	assert.Empty(t, s.Search(date(2024, time.January, 8), nil))
	assert.Equal(t, []string{"x"}, uids(s.Search(date(2024, time.January, 9), nil)))
	assert.NoError(t, s.Verify())
}

func TestInsertCopiesEntry(t *testing.T) {
	s := New()
	e := &schedule.Entry{UID: "x", Subject: "before", Dates: calendar.NewDateList(date(2024, time.June, 1))}
	require.NoError(t, s.Insert(e))
	e.Subject = "after"

	got, err := s.FindByUID("x")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Subject)
	got.Subject = "mutated"

	again, err := s.FindByUID("x")
	require.NoError(t, err)
	assert.Equal(t, "before", again.Subject)
}

func TestDeleteThenFind(t *testing.T) {
	s := New()
	d := date(2024, time.April, 2)
	require.NoError(t, s.Insert(&schedule.Entry{UID: "gone", Dates: calendar.NewDateList(d), Cond: recurrence.MustParse("Tue")}))
	require.NoError(t, s.Delete("gone"))

	_, err := s.FindByUID("gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.Search(d, nil))
	assert.Empty(t, s.Search(date(2024, time.April, 9), nil))
	assert.Zero(t, s.idx.memberships())

	assert.ErrorIs(t, s.Delete("gone"), ErrNotFound)
}

func TestChangeLog(t *testing.T) {
	s := New(WithClock(fixedClock()))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "a", Subject: "first"}))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "a", Subject: "second"}))
	require.NoError(t, s.Delete("a"))

	ts := fixedClock()()
	assert.Equal(t, []Change{
		{Op: OpModify, Time: ts, UID: "a", Subject: "first"},
		{Op: OpModify, Time: ts, UID: "a", Subject: "second"},
		{Op: OpDelete, Time: ts, UID: "a", Subject: "second"},
	}, s.Changes())
}

func TestLoadToleratesBadRecords(t *testing.T) {
	good := (&schedule.Entry{UID: "good", Dates: calendar.NewDateList(date(2024, time.July, 4))}).Marshal()
	records := []Record{
		{Source: "a.mhc", Data: good},
		{Source: "b.mhc", Data: []byte("X-SC-Record-Id: bad\nX-SC-Day: 2024-07-04\n\n")},
		{Source: "c.mhc", Data: []byte("X-SC-Subject: nobody\n\n")},
	}

	s := New()
	errs := s.Load(records)
	require.Len(t, errs, 2)

	var fe *calendar.FormatError
	require.True(t, errors.As(errs[0], &fe))
	assert.Equal(t, "b.mhc", fe.Source)
	assert.Equal(t, 2, fe.Line)
	require.True(t, errors.As(errs[1], &fe))
	assert.Equal(t, "c.mhc", fe.Source)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"good"}, uids(s.Search(date(2024, time.July, 4), nil)))
	assert.Empty(t, s.Changes())
}

func TestCorruptionAbortsMutation(t *testing.T) {
	s := New()
	e := &schedule.Entry{UID: "x", Subject: "kept", Cond: recurrence.MustParse("Fri")}
	require.NoError(t, s.Insert(e))

	delete(s.idx.buckets["all/all/Fri"], "x")

	var ce *IndexCorruptionError
	err := s.Insert(&schedule.Entry{UID: "x", Subject: "new"})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "x", ce.UID)
	assert.Equal(t, recurrence.SlotKey("all/all/Fri"), ce.Key)

	got, err := s.FindByUID("x")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Subject)

	require.True(t, errors.As(s.Delete("x"), &ce))
	assert.Equal(t, 1, s.Len())
	assert.Error(t, s.Verify())
	assert.Len(t, s.Changes(), 1)
}

func TestSearchRangeAndEachEntry(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(&schedule.Entry{UID: "w", Cond: recurrence.MustParse("Mon")}))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "d", Dates: calendar.NewDateList(date(2024, time.January, 3))}))

	days := s.SearchRange(date(2024, time.January, 1), date(2024, time.January, 14), nil)
	require.Len(t, days, 14)
	assert.Equal(t, date(2024, time.January, 1), days[0].Date)
	assert.Equal(t, []string{"w"}, uids(days[0].Entries))
	assert.Equal(t, []string{"d"}, uids(days[2].Entries))
	assert.Equal(t, []string{"w"}, uids(days[7].Entries))

	assert.Equal(t, []string{"w", "d"}, uids(s.EachEntry(date(2024, time.January, 1), date(2024, time.January, 14), nil)))
}

func TestIsHoliday(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(&schedule.Entry{
		UID:        "newyear",
		Dates:      calendar.NewDateList(date(2024, time.January, 1)),
		Categories: []string{"holiday"},
	}))
	assert.True(t, s.IsHoliday(date(2024, time.January, 1)))
	assert.False(t, s.IsHoliday(date(2024, time.January, 2)))

	custom := New(WithHolidayCategory("Off"))
	require.NoError(t, custom.Insert(&schedule.Entry{UID: "x", Cond: recurrence.MustParse("Sat"), Categories: []string{"Off"}}))
	assert.True(t, custom.IsHoliday(date(2024, time.January, 6)))
}

type countingObserver struct {
	entries    int
	mutations  []Op
	searches   int
	loadErrors int
}

func (o *countingObserver) EntriesChanged(n int)        { o.entries = n }
func (o *countingObserver) Mutated(op Op)               { o.mutations = append(o.mutations, op) }
func (o *countingObserver) Searched(time.Duration, int) { o.searches++ }
func (o *countingObserver) LoadFailed(n int)            { o.loadErrors += n }

func TestObserverSeesActivity(t *testing.T) {
	obs := &countingObserver{}
	s := New(WithObserver(obs))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "a"}))
	require.NoError(t, s.Insert(&schedule.Entry{UID: "b"}))
	require.NoError(t, s.Delete("a"))
	s.Search(date(2024, time.January, 1), nil)
	s.Load([]Record{{Source: "x", Data: []byte("X-SC-Bogus: 1\n\n")}})

	assert.Equal(t, 1, obs.entries)
	assert.Equal(t, []Op{OpModify, OpModify, OpDelete}, obs.mutations)
	assert.Equal(t, 1, obs.searches)
	assert.Equal(t, 1, obs.loadErrors)
}

var fuzzTokens = []string{
	"Jan", "Mar", "Feb", "Dec",
	"1", "15", "29", "30", "31",
	"1st", "2nd", "3rd", "4th", "5th", "Last",
	"Sun", "Mon", "Tue", "Fri", "Sat",
}

func randomEntry(rnd *rand.Rand, i int) *schedule.Entry {
	start := date(2023, time.June, 1)
	e := &schedule.Entry{UID: "e" + strconv.Itoa(i)}

	var cond []string
	for _, tok := range fuzzTokens {
		if rnd.Intn(8) == 0 {
			cond = append(cond, tok)
		}
	}
	if rnd.Intn(3) == 0 {
		cond = nil
	}
	e.Cond = recurrence.MustParse(strings.Join(cond, " "))

	var dates, exceptions []calendar.Date
	for n := rnd.Intn(4); n > 0; n-- {
		dates = append(dates, start.AddDays(rnd.Intn(400)))
	}
	for n := rnd.Intn(3); n > 0; n-- {
		exceptions = append(exceptions, start.AddDays(rnd.Intn(400)))
	}
	e.Dates = calendar.NewDateList(dates...)
	e.Exceptions = calendar.NewDateList(exceptions...)

	switch rnd.Intn(4) {
	case 0:
		lo := start.AddDays(rnd.Intn(200))
		e.Duration = calendar.Between(lo, lo.AddDays(rnd.Intn(200)))
	case 1:
		e.Duration = calendar.From(start.AddDays(rnd.Intn(300)))
	case 2:
		e.Duration = calendar.Until(start.AddDays(rnd.Intn(300)))
	}
	return e
}

// Search must agree with evaluating Occurs on every stored entry.
func TestSearchMatchesBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	s := New()
	var all []*schedule.Entry
	for i := 0; i < 300; i++ {
		e := randomEntry(rnd, i)
		all = append(all, e)
		require.NoError(t, s.Insert(e))
	}
	// Replace a slice of entries and delete a few so the index has churned.
	for i := 0; i < 60; i++ {
		e := randomEntry(rnd, i)
		all[i] = e
		require.NoError(t, s.Insert(e))
	}
	for i := 290; i < 300; i++ {
		require.NoError(t, s.Delete(all[i].UID))
	}
	all = all[:290]
	require.NoError(t, s.Verify())

	for d := date(2023, time.June, 1); d.Before(date(2024, time.September, 1)); d = d.Succ() {
		var want []string
		for _, e := range all {
			if e.Occurs(d) {
				want = append(want, e.UID)
			}
		}
		got := uids(s.Search(d, nil))
		slices.Sort(want)
		slices.Sort(got)
		require.Equal(t, want, got, "date %s", d)
	}
}

// Readers must never observe an entry between dropping its old slot keys
// and adding its new ones.
func TestSearchDuringReindex(t *testing.T) {
	s := New()
	shapes := []recurrence.Condition{recurrence.MustParse("Mon"), recurrence.MustParse("1st 2nd Mon")}
	require.NoError(t, s.Insert(&schedule.Entry{UID: "x", Cond: shapes[0]}))
	monday := date(2024, time.January, 1)

	var (
		wg     sync.WaitGroup
		misses atomic.Int64
		done   = make(chan struct{})
	)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if len(s.Search(monday, nil)) != 1 {
					misses.Add(1)
				}
			}
		}()
	}
	for i := 0; i < 2000; i++ {
		require.NoError(t, s.Insert(&schedule.Entry{UID: "x", Cond: shapes[i%2]}))
	}
	close(done)
	wg.Wait()

	assert.Zero(t, misses.Load())
	assert.NoError(t, s.Verify())
}
