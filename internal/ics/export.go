package ics

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"mhcal/internal/calendar"
	appLog "mhcal/internal/log"
	"mhcal/internal/schedule"
)

const productID = "-//mhcal//mhcal calendar//EN"

// Export renders entries as a VCALENDAR with one VEVENT each. DTSTART is
// the entry's first occurrence; entries that never occur are left out.
// Timed events carry TZID=loc when loc is a named zone and UTC otherwise.
func Export(entries []*schedule.Entry, loc *time.Location, now time.Time) *ical.Calendar {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendarFor("mhcal")
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if tzid, ok := zoneID(loc); ok {
		cal.SetXWRTimezone(tzid)
	}

	for _, e := range entries {
		first, ok := e.FirstOccurrence()
		if !ok {
			appLog.Debug("ics export: entry never occurs", "uid", e.UID)
			continue
		}
		addEvent(cal, e, first, loc, now)
	}
	return cal
}

func addEvent(cal *ical.Calendar, e *schedule.Entry, first calendar.Date, loc *time.Location, now time.Time) {
	ev := cal.AddEvent(e.UID)
	ev.SetDtStampTime(now)
	ev.SetSummary(e.Subject)
	if e.Location != "" {
		ev.SetLocation(e.Location)
	}
	if e.Body != "" {
		ev.SetDescription(strings.TrimRight(e.Body, "\n"))
	}
	for _, c := range e.Categories {
		ev.AddCategory(c)
	}
	if e.Priority != nil {
		ev.SetPriority(*e.Priority)
	}

	lo, timed := e.Time.Lower()
	if timed {
		setDateTime(&ev.ComponentBase, ical.ComponentPropertyDtStart, lo.On(first, loc), loc)
		if hi, ok := e.Time.Upper(); ok {
			setDateTime(&ev.ComponentBase, ical.ComponentPropertyDtEnd, hi.On(first, loc), loc)
		}
	} else {
		ev.SetAllDayStartAt(first.Time(time.UTC))
		ev.SetAllDayEndAt(first.Succ().Time(time.UTC))
	}

	if opt, ok := RuleOption(e.Cond, e.Duration, loc); ok {
		ev.AddRrule(opt.RRuleString())
	}
	for _, d := range e.Dates.Dates() {
		if d != first && e.Occurs(d) {
			ev.AddRdate(instant(d, lo, timed, loc), dateParams(timed, loc)...)
		}
	}
	for _, d := range e.Exceptions.Dates() {
		ev.AddExdate(instant(d, lo, timed, loc), dateParams(timed, loc)...)
	}

	if e.Alarm.IsSet() {
		a := ev.AddAlarm()
		a.SetAction(ical.ActionDisplay)
		a.SetTrigger(trigger(e.Alarm))
		a.SetProperty(ical.ComponentPropertyDescription, e.Subject)
	}
}

// zoneID returns an IANA zone name usable as TZID.
func zoneID(loc *time.Location) (string, bool) {
	name := loc.String()
	if name == "" || name == "Local" || name == "UTC" {
		return "", false
	}
	return name, true
}

func setDateTime(c *ical.ComponentBase, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	if tzid, ok := zoneID(loc); ok {
		c.SetProperty(prop, t.In(loc).Format(rrule.LocalDateTimeFormat), ical.WithTZID(tzid))
		return
	}
	c.SetProperty(prop, t.UTC().Format(rrule.DateTimeFormat))
}

// instant formats d the way DTSTART is formatted, so RDATE and EXDATE
// values line up with the generated instances.
func instant(d calendar.Date, at calendar.TimeOfDay, timed bool, loc *time.Location) string {
	if !timed {
		return d.Time(time.UTC).Format(rrule.DateFormat)
	}
	t := at.On(d, loc)
	if _, ok := zoneID(loc); ok {
		return t.Format(rrule.LocalDateTimeFormat)
	}
	return t.UTC().Format(rrule.DateTimeFormat)
}

func dateParams(timed bool, loc *time.Location) []ical.PropertyParameter {
	if !timed {
		return []ical.PropertyParameter{ical.WithValue(string(ical.ValueDataTypeDate))}
	}
	if tzid, ok := zoneID(loc); ok {
		return []ical.PropertyParameter{ical.WithTZID(tzid)}
	}
	return nil
}

// trigger renders a lead time as a negative minute duration.
func trigger(l calendar.LeadTime) string {
	return "-PT" + strconv.Itoa(int(l.Duration()/time.Minute)) + "M"
}
