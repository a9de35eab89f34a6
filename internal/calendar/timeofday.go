package calendar

import (
	"strconv"
	"strings"
	"time"
)

// maxTimeHours allows the late-night "25:30" style used for events that run
// past midnight of their date.
const maxTimeHours = 48

// TimeOfDay is minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, formatErr("time", s, "expected HH:MM")
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > maxTimeHours {
		return 0, formatErr("time", s, "hour out of range")
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, formatErr("time", s, "minute out of range")
	}
	return NewTimeOfDay(hour, minute), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Duration returns the offset from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

// On returns the instant of t on date d in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) Compare(o TimeOfDay) int {
	return cmpInt(int(t), int(o))
}

func (t TimeOfDay) String() string {
	var b [5]byte
	putDigits(b[0:2], t.Hour())
	b[2] = ':'
	putDigits(b[3:5], t.Minute())
	return string(b[:])
}
