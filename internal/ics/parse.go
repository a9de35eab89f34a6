package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"mhcal/internal/calendar"
	appLog "mhcal/internal/log"
	"mhcal/internal/schedule"
)

// maxSpanDays bounds the dates generated for one multi-day all-day event.
const maxSpanDays = 366

// SkipError reports a VEVENT that was left out of an import.
type SkipError struct {
	UID string
	Err error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("ics: skipped event %q: %v", e.UID, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// ImportResult is the outcome of ParseICS.
type ImportResult struct {
	Entries []*schedule.Entry
	Skipped []error
}

// ParseICS maps the VEVENTs of an iCalendar payload onto entries.
//
//   - All-day events are detected from the DTSTART value form; timed
//     events are placed in loc and keep their start and, when it falls on
//     the same day, their end time.
//   - RRULEs are translated with ConditionFromRule. Events whose rule has
//     no equivalent condition are skipped and reported, not approximated.
//   - A RECURRENCE-ID override becomes an exception of its master plus an
//     entry of its own, uid "<master uid>-<YYYYMMDD>".
func ParseICS(src Source, body []byte, loc *time.Location) (ImportResult, error) {
	var result ImportResult
	if len(body) == 0 {
		return result, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", src)
		return result, fmt.Errorf("ics: parse %s: %w", src, err)
	}

	skip := func(uid string, err error) {
		appLog.Error("ics event skipped", err, "source", src, "uid", uid)
		result.Skipped = append(result.Skipped, &SkipError{UID: uid, Err: err})
	}

	masters := make(map[string]*schedule.Entry)
	var overrides []*ical.VEvent
	for _, ve := range cal.Events() {
		if ve.GetProperty(ical.ComponentPropertyRecurrenceId) != nil {
			overrides = append(overrides, ve)
			continue
		}
		e, err := entryFromVEvent(ve, loc)
		if err != nil {
			skip(propText(ve, ical.ComponentPropertyUniqueId), err)
			continue
		}
		result.Entries = append(result.Entries, e)
		masters[e.UID] = e
	}

	for _, ve := range overrides {
		uid := propText(ve, ical.ComponentPropertyUniqueId)
		rid, err := recurrenceDate(ve, loc)
		if err != nil {
			skip(uid, err)
			continue
		}
		if m, ok := masters[uid]; ok {
			m.Exceptions = m.Exceptions.Add(rid)
		}
		ve.RemoveProperty(ical.ComponentPropertyRrule)
		e, err := entryFromVEvent(ve, loc)
		if err != nil {
			skip(uid, err)
			continue
		}
		e.UID = uid + "-" + rid.String()
		result.Entries = append(result.Entries, e)
	}

	appLog.Info("ics parse completed", "source", src,
		"entries", len(result.Entries), "skipped", len(result.Skipped))
	return result, nil
}

func entryFromVEvent(ve *ical.VEvent, loc *time.Location) (*schedule.Entry, error) {
	e := &schedule.Entry{
		UID:      propText(ve, ical.ComponentPropertyUniqueId),
		Subject:  propText(ve, ical.ComponentPropertySummary),
		Location: propText(ve, ical.ComponentPropertyLocation),
		Body:     propText(ve, ical.ComponentPropertyDescription),
	}
	if e.UID == "" {
		e.UID = schedule.NewUID()
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			c = strings.TrimSpace(c)
			if c != "" && !e.HasCategory(c) {
				e.Categories = append(e.Categories, c)
			}
		}
	}
	// PRIORITY 0 is "undefined".
	if n, err := strconv.Atoi(propText(ve, ical.ComponentPropertyPriority)); err == nil && n > 0 {
		e.Priority = &n
	}

	start, end, allDay, err := eventSpan(ve, loc)
	if err != nil {
		return nil, err
	}
	first := calendar.DateOf(start)
	if !allDay {
		tod := calendar.NewTimeOfDay(start.Hour(), start.Minute())
		if !end.IsZero() && calendar.DateOf(end) == first && end.After(start) {
			e.Time = calendar.Between(tod, calendar.NewTimeOfDay(end.Hour(), end.Minute()))
		} else {
			e.Time = calendar.From(tod)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		opt, err := rrule.StrToROptionInLocation(p.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
		}
		cond, err := ConditionFromRule(*opt, first)
		if err != nil {
			return nil, err
		}
		e.Cond = cond
		e.Duration = calendar.From(first)
		if !opt.Until.IsZero() {
			e.Duration = calendar.Between(first, calendar.DateOf(opt.Until.In(loc)))
		}
		// DTSTART is always an instance.
		if !cond.Matches(first) {
			e.Dates = e.Dates.Add(first)
		}
	} else {
		e.Dates = spannedDates(first, end, allDay)
	}

	rdates, err := propDates(ve, ical.ComponentPropertyRdate, loc)
	if err != nil {
		return nil, err
	}
	for _, d := range rdates {
		e.Dates = e.Dates.Add(d)
	}
	exdates, err := propDates(ve, ical.ComponentPropertyExdate, loc)
	if err != nil {
		return nil, err
	}
	for _, d := range exdates {
		e.Exceptions = e.Exceptions.Add(d)
	}

	for _, a := range ve.Alarms() {
		if lead, ok := parseTrigger(propText(a, ical.ComponentPropertyTrigger)); ok {
			e.Alarm = calendar.NewLeadTime(lead)
			break
		}
	}
	return e, nil
}

// eventSpan returns the start and (possibly zero) end of the event. All-day
// values keep the calendar date they name; timed values are moved into loc.
func eventSpan(ve *ical.VEvent, loc *time.Location) (start, end time.Time, allDay bool, err error) {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return start, end, false, errors.New("missing DTSTART")
	}
	if isDateValue(&p.BaseProperty) {
		start, err = ve.GetAllDayStartAt()
		if err != nil {
			return start, end, true, err
		}
		end, _ = ve.GetAllDayEndAt()
		return start, end, true, nil
	}
	start, err = ve.GetStartAt()
	if err != nil {
		return start, end, false, err
	}
	if t, err := ve.GetEndAt(); err == nil {
		end = t.In(loc)
	}
	return start.In(loc), end, false, nil
}

// isDateValue reports VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.BaseProperty) bool {
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], string(ical.ValueDataTypeDate)) {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// spannedDates lists the days of a one-off event. DTEND of an all-day
// event is exclusive.
func spannedDates(first calendar.Date, end time.Time, allDay bool) calendar.DateList {
	dates := calendar.NewDateList(first)
	if end.IsZero() {
		return dates
	}
	last := calendar.DateOf(end)
	if allDay {
		last = last.AddDays(-1)
	}
	for d, n := first.Succ(), 1; !d.After(last) && n < maxSpanDays; d, n = d.Succ(), n+1 {
		dates = dates.Add(d)
	}
	return dates
}

func recurrenceDate(ve *ical.VEvent, loc *time.Location) (calendar.Date, error) {
	p := ve.GetProperty(ical.ComponentPropertyRecurrenceId)
	ts, err := propValueDates(&p.BaseProperty, loc)
	if err != nil || len(ts) != 1 {
		return calendar.Date{}, fmt.Errorf("bad RECURRENCE-ID %q", p.Value)
	}
	return ts[0], nil
}

func propDates(ve *ical.VEvent, prop ical.ComponentProperty, loc *time.Location) ([]calendar.Date, error) {
	var out []calendar.Date
	for _, p := range ve.GetProperties(prop) {
		ds, err := propValueDates(&p.BaseProperty, loc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", prop, err)
		}
		out = append(out, ds...)
	}
	return out, nil
}

// propValueDates parses a comma separated DATE / DATE-TIME list honouring
// the property's TZID.
func propValueDates(p *ical.BaseProperty, loc *time.Location) ([]calendar.Date, error) {
	in := loc
	if tz := p.ICalParameters["TZID"]; len(tz) == 1 {
		l, err := time.LoadLocation(tz[0])
		if err != nil {
			return nil, err
		}
		in = l
	}
	ts, err := rrule.StrToDatesInLoc(p.Value, in)
	if err != nil {
		return nil, err
	}
	out := make([]calendar.Date, 0, len(ts))
	for _, t := range ts {
		if isDateValue(p) {
			out = append(out, calendar.DateOf(t))
			continue
		}
		out = append(out, calendar.DateOf(t.In(loc)))
	}
	return out, nil
}

type propertyGetter interface {
	GetProperty(ical.ComponentProperty) *ical.IANAProperty
}

func propText(c propertyGetter, prop ical.ComponentProperty) string {
	if p := c.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// parseTrigger reads a relative alarm trigger such as "-PT15M" or "-P1D"
// and returns the lead time before the start. Absolute triggers and
// triggers after the start are not representable.
func parseTrigger(v string) (time.Duration, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	before := false
	switch {
	case strings.HasPrefix(v, "-"):
		before = true
		v = v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") || len(v) < 3 {
		return 0, false
	}
	var (
		total  time.Duration
		inTime bool
		num    int
		digits bool
	)
	for _, r := range v[1:] {
		switch {
		case r >= '0' && r <= '9':
			num = num*10 + int(r-'0')
			digits = true
			continue
		case r == 'T' && !inTime && !digits:
			inTime = true
			continue
		}
		if !digits {
			return 0, false
		}
		unit := time.Duration(0)
		switch {
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, false
		}
		total += time.Duration(num) * unit
		num, digits = 0, false
	}
	if digits || (!before && total != 0) {
		return 0, false
	}
	return total, true
}
