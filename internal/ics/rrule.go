package ics

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
)

// ErrUnsupportedRule is returned for RRULEs with no equivalent condition.
var ErrUnsupportedRule = errors.New("ics: recurrence rule has no equivalent condition")

// rruleWeekdays is indexed by time.Weekday.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func weekdayFromRRule(w rrule.Weekday) time.Weekday {
	return time.Weekday((w.Day() + 1) % 7)
}

func ordinalToNth(o recurrence.Ordinal) int {
	if o == recurrence.Last {
		return -1
	}
	return int(o)
}

// RuleOption maps a condition onto an RRULE. Explicit dates, exceptions
// and the duration lower bound are not part of it; callers set Dtstart.
// A condition without a recurrence class yields false.
//
//	YEARLY            FREQ=DAILY;BYMONTH=..
//	MONTHLY-BY-DATE   FREQ=MONTHLY;BYMONTHDAY=..
//	ordinal weekday   FREQ=MONTHLY;BYDAY=+1MO,-1MO
//	WEEKLY            FREQ=WEEKLY;BYDAY=..
func RuleOption(cond recurrence.Condition, until calendar.DateRange, loc *time.Location) (rrule.ROption, bool) {
	var opt rrule.ROption
	switch cond.Class() {
	case recurrence.ClassYearly:
		opt.Freq = rrule.DAILY
		for _, m := range cond.Months() {
			opt.Bymonth = append(opt.Bymonth, int(m))
		}
	case recurrence.ClassMonthlyByDate:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = cond.MonthDays()
	case recurrence.ClassMonthlyByWeekday:
		opt.Freq = rrule.MONTHLY
		for _, o := range cond.Ordinals() {
			for _, w := range cond.Weekdays() {
				wd := rruleWeekdays[w]
				opt.Byweekday = append(opt.Byweekday, wd.Nth(ordinalToNth(o)))
			}
		}
	case recurrence.ClassWeekly:
		opt.Freq = rrule.WEEKLY
		for _, w := range cond.Weekdays() {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[w])
		}
	default:
		return opt, false
	}
	if hi, ok := until.Upper(); ok {
		opt.Until = endOfDay(hi, loc)
	}
	return opt, true
}

func endOfDay(d calendar.Date, loc *time.Location) time.Time {
	return d.Time(loc).Add(24*time.Hour - time.Second)
}

// ConditionFromRule is the inverse of RuleOption. start is the event's
// first date and fills in what the rule leaves implicit (the weekday of a
// bare weekly rule, the day of a bare monthly one).
func ConditionFromRule(opt rrule.ROption, start calendar.Date) (recurrence.Condition, error) {
	var cond recurrence.Condition
	if (opt.Interval != 0 && opt.Interval != 1) || opt.Count != 0 ||
		len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return cond, fmt.Errorf("%w: %s", ErrUnsupportedRule, opt.RRuleString())
	}
	unsupported := func() (recurrence.Condition, error) {
		return recurrence.Condition{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, opt.RRuleString())
	}

	switch opt.Freq {
	case rrule.DAILY:
		if len(opt.Bymonthday) > 0 || len(opt.Byweekday) > 0 {
			return unsupported()
		}
		if len(opt.Bymonth) == 0 {
			return cond.WithWeekdays(time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
				time.Thursday, time.Friday, time.Saturday), nil
		}
		for _, m := range opt.Bymonth {
			if m < 1 || m > 12 {
				return unsupported()
			}
			cond = cond.WithMonths(time.Month(m))
		}
		return cond, nil

	case rrule.WEEKLY:
		if len(opt.Bymonth) > 0 || len(opt.Bymonthday) > 0 {
			return unsupported()
		}
		if len(opt.Byweekday) == 0 {
			return cond.WithWeekdays(start.Weekday()), nil
		}
		for _, w := range opt.Byweekday {
			if w.N() != 0 {
				return unsupported()
			}
			cond = cond.WithWeekdays(weekdayFromRRule(w))
		}
		return cond, nil

	case rrule.MONTHLY:
		if len(opt.Bymonth) > 0 || (len(opt.Bymonthday) > 0 && len(opt.Byweekday) > 0) {
			return unsupported()
		}
		if len(opt.Bymonthday) > 0 {
			for _, d := range opt.Bymonthday {
				if d < 1 || d > 31 {
					return unsupported()
				}
				cond = cond.WithMonthDays(d)
			}
			return cond, nil
		}
		if len(opt.Byweekday) == 0 {
			return cond.WithMonthDays(start.Day()), nil
		}
		if !slices.ContainsFunc(opt.Byweekday, func(w rrule.Weekday) bool { return w.N() != 0 }) {
			// Every such weekday of every month.
			for _, w := range opt.Byweekday {
				cond = cond.WithWeekdays(weekdayFromRRule(w))
			}
			return cond, nil
		}
		return ordinalCondition(opt)
	}
	return unsupported()
}

// ordinalCondition accepts BYDAY lists that form a full product of
// ordinals and weekdays, which is all a condition can express.
func ordinalCondition(opt rrule.ROption) (recurrence.Condition, error) {
	type pair struct {
		nth int
		day time.Weekday
	}
	var (
		cond  recurrence.Condition
		seen  []pair
		nths  []int
		wdays []time.Weekday
	)
	for _, w := range opt.Byweekday {
		n := w.N()
		var o recurrence.Ordinal
		switch {
		case n >= 1 && n <= 5:
			o = recurrence.Ordinal(n)
		case n == -1:
			o = recurrence.Last
		default:
			return cond, fmt.Errorf("%w: %s", ErrUnsupportedRule, opt.RRuleString())
		}
		day := weekdayFromRRule(w)
		cond = cond.WithOrdinals(o).WithWeekdays(day)
		seen = append(seen, pair{n, day})
		if !slices.Contains(nths, n) {
			nths = append(nths, n)
		}
		if !slices.Contains(wdays, day) {
			wdays = append(wdays, day)
		}
	}
	for _, n := range nths {
		for _, d := range wdays {
			if !slices.Contains(seen, pair{n, d}) {
				return recurrence.Condition{}, fmt.Errorf("%w: %s", ErrUnsupportedRule, opt.RRuleString())
			}
		}
	}
	return cond, nil
}
