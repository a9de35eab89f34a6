package ics

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
	"mhcal/internal/schedule"
)

func date(y int, m time.Month, d int) calendar.Date { return calendar.MustDate(y, m, d) }

func TestRuleOption(t *testing.T) {
	cases := []struct {
		cond  string
		until calendar.DateRange
		want  string
	}{
		{"Mon Wed", calendar.DateRange{}, "FREQ=WEEKLY;BYDAY=MO,WE"},
		{"Jan Aug", calendar.DateRange{}, "FREQ=DAILY;BYMONTH=1,8"},
		{"1 15", calendar.DateRange{}, "FREQ=MONTHLY;BYMONTHDAY=1,15"},
		{"1st Last Mon", calendar.DateRange{}, "FREQ=MONTHLY;BYDAY=+1MO,-1MO"},
		{"2nd 4th Tue Thu", calendar.DateRange{}, "FREQ=MONTHLY;BYDAY=+2TU,+2TH,+4TU,+4TH"},
		{"Mon", calendar.Between(date(2024, time.January, 1), date(2024, time.March, 31)),
			"FREQ=WEEKLY;UNTIL=20240331T235959Z;BYDAY=MO"},
		// Months outrank everything else.
		{"Feb 10 Fri", calendar.DateRange{}, "FREQ=DAILY;BYMONTH=2"},
	}
	for _, tc := range cases {
		t.Run(tc.cond, func(t *testing.T) {
			opt, ok := RuleOption(recurrence.MustParse(tc.cond), tc.until, time.UTC)
			require.True(t, ok)
			assert.Equal(t, tc.want, opt.RRuleString())
		})
	}

	_, ok := RuleOption(recurrence.Condition{}, calendar.DateRange{}, time.UTC)
	assert.False(t, ok)
}

func TestConditionFromRule(t *testing.T) {
	start := date(2024, time.March, 13) // Wednesday
	cases := []struct {
		rule string
		want string
	}{
		{"FREQ=WEEKLY;BYDAY=MO,WE", "Mon Wed"},
		{"FREQ=WEEKLY", "Wed"},
		{"FREQ=WEEKLY;INTERVAL=1;WKST=SU;BYDAY=FR", "Fri"},
		{"FREQ=DAILY;BYMONTH=1,8", "Jan Aug"},
		{"FREQ=DAILY", "Sun Mon Tue Wed Thu Fri Sat"},
		{"FREQ=MONTHLY;BYMONTHDAY=1,15", "01 15"},
		{"FREQ=MONTHLY", "13"},
		{"FREQ=MONTHLY;BYDAY=+1MO,-1MO", "1st Last Mon"},
		{"FREQ=MONTHLY;BYDAY=2TU,2TH,4TU,4TH", "2nd 4th Tue Thu"},
		{"FREQ=MONTHLY;BYDAY=SA", "Sat"},
	}
	for _, tc := range cases {
		t.Run(tc.rule, func(t *testing.T) {
			opt, err := rrule.StrToROption(tc.rule)
			require.NoError(t, err)
			cond, err := ConditionFromRule(*opt, start)
			require.NoError(t, err)
			assert.Equal(t, recurrence.MustParse(tc.want), cond)
		})
	}
}

func TestConditionFromRuleUnsupported(t *testing.T) {
	for _, rule := range []string{
		"FREQ=YEARLY",
		"FREQ=MONTHLY;INTERVAL=2;BYMONTHDAY=1",
		"FREQ=DAILY;COUNT=3",
		"FREQ=MONTHLY;BYDAY=MO;BYSETPOS=-1",
		"FREQ=MONTHLY;BYDAY=1MO,-1TU",
		"FREQ=MONTHLY;BYDAY=-2FR",
		"FREQ=MONTHLY;BYMONTHDAY=-1",
		"FREQ=WEEKLY;BYDAY=MO;BYHOUR=9,17",
		"FREQ=HOURLY",
	} {
		t.Run(rule, func(t *testing.T) {
			opt, err := rrule.StrToROption(rule)
			require.NoError(t, err)
			_, err = ConditionFromRule(*opt, date(2024, time.January, 1))
			assert.True(t, errors.Is(err, ErrUnsupportedRule), "got %v", err)
		})
	}
}

func TestRuleRoundTrip(t *testing.T) {
	for _, s := range []string{"Mon Wed Sat", "Mar Apr", "31", "5th Sun", "Last Fri", "1st 3rd Mon Wed"} {
		cond := recurrence.MustParse(s)
		opt, ok := RuleOption(cond, calendar.DateRange{}, time.UTC)
		require.True(t, ok, s)
		back, err := ConditionFromRule(opt, date(2024, time.January, 1))
		require.NoError(t, err, s)
		assert.Equal(t, cond, back, s)
	}
}

// randomEntry draws a small random condition, a few explicit dates and
// exceptions, and an optional duration inside 2024..2025.
func randomEntry(rng *rand.Rand, uid string) *schedule.Entry {
	day := func() calendar.Date { return date(2024, time.January, 1).AddDays(rng.Intn(731)) }
	e := &schedule.Entry{UID: uid}

	var cond recurrence.Condition
	switch rng.Intn(5) {
	case 0:
		cond = cond.WithMonths(time.Month(1 + rng.Intn(12)))
	case 1:
		cond = cond.WithMonthDays(1+rng.Intn(31), 1+rng.Intn(31))
	case 2:
		cond = cond.WithOrdinals(recurrence.Ordinal(1+rng.Intn(6))).WithWeekdays(time.Weekday(rng.Intn(7)))
	case 3:
		cond = cond.WithWeekdays(time.Weekday(rng.Intn(7)), time.Weekday(rng.Intn(7)))
	}
	e.Cond = cond

	for i := rng.Intn(4); i > 0; i-- {
		e.Dates = e.Dates.Add(day())
	}
	for i := rng.Intn(6); i > 0; i-- {
		e.Exceptions = e.Exceptions.Add(day())
	}
	a, b := day(), day()
	if b.Before(a) {
		a, b = b, a
	}
	switch rng.Intn(4) {
	case 0:
		e.Duration = calendar.Between(a, b)
	case 1:
		e.Duration = calendar.From(a)
	case 2:
		e.Duration = calendar.Until(b)
	}
	return e
}

func TestOccurrenceDatesAgreesWithOccurs(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	from, to := date(2024, time.January, 1), date(2025, time.December, 31)

	for i := 0; i < 200; i++ {
		e := randomEntry(rng, "e")
		var want []calendar.Date
		for d := from; !d.After(to); d = d.Succ() {
			if e.Occurs(d) {
				want = append(want, d)
			}
		}
		got, err := OccurrenceDates(e, from, to)
		require.NoError(t, err)
		require.Equal(t, want, got, "cond=%q dates=%q except=%q duration=%q",
			e.Cond.String(), e.Dates.String(), e.Exceptions.String(), e.Duration.String())
	}
}

func TestOccurrencesCap(t *testing.T) {
	e := &schedule.Entry{UID: "daily", Cond: recurrence.MustParse("Sun Mon Tue Wed Thu Fri Sat")}
	occ, truncated, err := Occurrences(e, ExpandConfig{
		Location:               time.UTC,
		From:                   date(2024, time.January, 1),
		To:                     date(2024, time.December, 31),
		MaxOccurrencesPerEntry: 10,
	})
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, occ, 10)
	assert.Equal(t, "daily/20240110", occ[9].InstanceKey)
}

func TestExpandSortsAcrossEntries(t *testing.T) {
	entries := []*schedule.Entry{
		{UID: "late", Dates: calendar.NewDateList(date(2024, time.May, 2)),
			Time: calendar.From(calendar.NewTimeOfDay(8, 0))},
		{UID: "weekly", Cond: recurrence.MustParse("Thu")},
	}
	res, err := Expand(entries, ExpandConfig{
		Location: time.UTC,
		From:     date(2024, time.May, 1),
		To:       date(2024, time.May, 9),
	})
	require.NoError(t, err)
	require.Empty(t, res.Truncated)

	var keys []string
	for _, o := range res.Occurrences {
		keys = append(keys, o.InstanceKey)
	}
	assert.Equal(t, []string{"weekly/20240502", "late/20240502", "weekly/20240509"}, keys)

	_, err = Expand(entries, ExpandConfig{From: date(2024, time.May, 9), To: date(2024, time.May, 1)})
	assert.Error(t, err)
}
