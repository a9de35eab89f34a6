package recurrence

import "mhcal/internal/calendar"

// SlotKey labels one bucket of the schedule index. Keys are derived on
// demand and never persisted.
//
// Shapes:
//
//	YYYYMMDD      one explicit date
//	Jan/all/all   every day of a month
//	all/day/07    a day of month
//	all/2nd/Mon   an ordinal weekday
//	all/Last/Mon  the last weekday of a month
//	all/all/Mon   a weekday
type SlotKey string

const wildcard = "all"

func shapeKey(month, mid, weekday string) SlotKey {
	return SlotKey(month + "/" + mid + "/" + weekday)
}

// DateKey is the key an explicit date is filed under.
func DateKey(d calendar.Date) SlotKey {
	return SlotKey(d.String())
}

func monthKey(m int) SlotKey { return shapeKey(monthNames[m], wildcard, wildcard) }

func monthDayKey(day int) SlotKey { return shapeKey(wildcard, "day", twoDigits(day)) }

func weekdayKey(w int) SlotKey { return shapeKey(wildcard, wildcard, weekdayNames[w]) }

func ordinalKey(o Ordinal, w int) SlotKey {
	return shapeKey(wildcard, ordinalNames[o], weekdayNames[w])
}

// ProbeKeys returns the keys a query for d must look in. They depend only
// on d's own attributes: five keys, six when d falls in the last week of
// its month.
func ProbeKeys(d calendar.Date) []SlotKey {
	w := int(d.Weekday())
	keys := make([]SlotKey, 0, 6)
	keys = append(keys,
		DateKey(d),
		monthKey(int(d.Month())),
		monthDayKey(d.Day()),
		ordinalKey(Ordinal(d.OrdinalInMonth()), w),
		weekdayKey(w),
	)
	if d.InLastWeekOfMonth() {
		keys = append(keys, ordinalKey(Last, w))
	}
	return keys
}

// ShapeKeys returns the keys a condition is filed under. For every date d
// with c.Matches(d), at least one of them is among ProbeKeys(d).
func (c Condition) ShapeKeys() []SlotKey {
	var keys []SlotKey
	switch c.Class() {
	case ClassYearly:
		for _, m := range c.Months() {
			keys = append(keys, monthKey(int(m)))
		}
	case ClassMonthlyByDate:
		for _, d := range c.MonthDays() {
			keys = append(keys, monthDayKey(d))
		}
	case ClassMonthlyByWeekday:
		for _, o := range c.Ordinals() {
			for _, w := range c.Weekdays() {
				keys = append(keys, ordinalKey(o, int(w)))
			}
		}
	case ClassWeekly:
		for _, w := range c.Weekdays() {
			keys = append(keys, weekdayKey(int(w)))
		}
	}
	return keys
}
