package calendar

import (
	"strconv"
	"strings"
	"time"
)

// LeadTime is how long before an event's start its alarm fires. The zero
// value means no alarm.
type LeadTime struct {
	minutes int
	set     bool
}

var leadUnits = []struct {
	name    string
	minutes int
}{
	{"day", 24 * 60},
	{"hour", 60},
	{"minute", 1},
}

// NewLeadTime rounds d down to whole minutes.
func NewLeadTime(d time.Duration) LeadTime {
	return LeadTime{minutes: int(d / time.Minute), set: true}
}

// ParseLeadTime parses "<n> minute|hour|day" (plural accepted). The empty
// string is the absent lead time.
func ParseLeadTime(s string) (LeadTime, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return LeadTime{}, nil
	case 2:
	default:
		return LeadTime{}, formatErr("alarm", s, "expected \"<n> minute|hour|day\"")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return LeadTime{}, formatErr("alarm", s, "invalid amount")
	}
	unit := strings.TrimSuffix(strings.ToLower(fields[1]), "s")
	for _, u := range leadUnits {
		if u.name == unit {
			return LeadTime{minutes: n * u.minutes, set: true}, nil
		}
	}
	return LeadTime{}, formatErr("alarm", s, "unknown unit")
}

func (l LeadTime) IsSet() bool { return l.set }

func (l LeadTime) Duration() time.Duration {
	return time.Duration(l.minutes) * time.Minute
}

// String uses the largest unit that divides the lead time evenly.
func (l LeadTime) String() string {
	if !l.set {
		return ""
	}
	for _, u := range leadUnits {
		if l.minutes%u.minutes == 0 && (l.minutes > 0 || u.minutes == 1) {
			return strconv.Itoa(l.minutes/u.minutes) + " " + u.name
		}
	}
	return strconv.Itoa(l.minutes) + " minute"
}
