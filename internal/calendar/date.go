// Package calendar holds the value types shared by the schedule store:
// Gregorian dates, times of day, ranges over both, date lists and alarm
// lead times, each with a canonical text encoding.
package calendar

import (
	"time"
)

var daysOfMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeap reports whether y is a Gregorian leap year.
func IsLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// DaysInMonth returns the number of days in month m of year y.
func DaysInMonth(y int, m time.Month) int {
	if m < time.January || m > time.December {
		return 0
	}
	if m == time.February && IsLeap(y) {
		return 29
	}
	return daysOfMonth[m]
}

// Date is an immutable (year, month, day) value. The zero Date is invalid
// and only used as "absent".
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate validates and builds a Date.
func NewDate(y int, m time.Month, d int) (Date, error) {
	if y < 1 || y > 9999 {
		return Date{}, formatErr("date", "", "year out of range")
	}
	if m < time.January || m > time.December {
		return Date{}, formatErr("date", "", "month out of range")
	}
	if d < 1 || d > DaysInMonth(y, m) {
		return Date{}, formatErr("date", "", "day out of range")
	}
	return Date{y: y, m: m, d: d}, nil
}

// MustDate is NewDate for literals known to be valid.
func MustDate(y int, m time.Month, d int) Date {
	dt, err := NewDate(y, m, d)
	if err != nil {
		panic(err)
	}
	return dt
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{y: y, m: m, d: d}
}

// ParseDate parses the canonical YYYYMMDD form.
func ParseDate(s string) (Date, error) {
	if len(s) != 8 {
		return Date{}, formatErr("date", s, "expected 8 digits YYYYMMDD")
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return Date{}, formatErr("date", s, "expected 8 digits YYYYMMDD")
		}
		n = n*10 + int(c-'0')
	}
	dt, err := NewDate(n/10000, time.Month(n/100%100), n%100)
	if err != nil {
		fe := err.(*FormatError)
		fe.Value = s
		return Date{}, fe
	}
	return dt, nil
}

func (d Date) Year() int             { return d.y }
func (d Date) Month() time.Month     { return d.m }
func (d Date) Day() int              { return d.d }
func (d Date) IsZero() bool          { return d == Date{} }
func (d Date) DaysInMonth() int      { return DaysInMonth(d.y, d.m) }
func (d Date) Weekday() time.Weekday { return d.Time(time.UTC).Weekday() }

// OrdinalInMonth is which occurrence of its weekday the date is within the
// month: 1 for days 1-7, 2 for 8-14 and so on up to 5.
func (d Date) OrdinalInMonth() int {
	return (d.d-1)/7 + 1
}

// InLastWeekOfMonth reports whether no more than six days remain in the
// month, i.e. the date is the last occurrence of its weekday.
func (d Date) InLastWeekOfMonth() bool {
	return d.d > d.DaysInMonth()-7
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n days, carrying across months and years.
func (d Date) AddDays(n int) Date {
	if n == 0 {
		return d
	}
	// Noon UTC keeps the arithmetic clear of any DST edge.
	t := time.Date(d.y, d.m, d.d+n, 12, 0, 0, 0, time.UTC)
	return DateOf(t)
}

func (d Date) Succ() Date { return d.AddDays(1) }

// DaysUntil returns the signed number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	a := time.Date(d.y, d.m, d.d, 12, 0, 0, 0, time.UTC)
	b := time.Date(o.y, o.m, o.d, 12, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func (d Date) Compare(o Date) int {
	switch {
	case d.y != o.y:
		return cmpInt(d.y, o.y)
	case d.m != o.m:
		return cmpInt(int(d.m), int(o.m))
	default:
		return cmpInt(d.d, o.d)
	}
}

func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }
func (d Date) After(o Date) bool  { return d.Compare(o) > 0 }

// String returns the canonical YYYYMMDD encoding.
func (d Date) String() string {
	var b [8]byte
	putDigits(b[0:4], d.y)
	putDigits(b[4:6], int(d.m))
	putDigits(b[6:8], d.d)
	return string(b[:])
}

func putDigits(dst []byte, n int) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte('0' + n%10)
		n /= 10
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
