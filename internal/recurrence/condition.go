// Package recurrence models the X-SC-Cond rule: sets of months, days of
// month, weekdays and weekday ordinals, the frequency class inferred from
// them, date matching, and the slot keys used by the schedule index.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"mhcal/internal/calendar"
)

// Ordinal selects which occurrence of a weekday within a month matches.
type Ordinal int

const (
	First Ordinal = iota + 1
	Second
	Third
	Fourth
	Fifth
	Last
)

var ordinalNames = [...]string{First: "1st", Second: "2nd", Third: "3rd", Fourth: "4th", Fifth: "5th", Last: "Last"}

func (o Ordinal) String() string {
	if o < First || o > Last {
		return "Ordinal(" + strconv.Itoa(int(o)) + ")"
	}
	return ordinalNames[o]
}

var (
	monthNames   = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
	weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
)

// Class is the frequency class inferred from which sets are populated.
type Class int

const (
	ClassNone Class = iota
	ClassYearly
	ClassMonthlyByDate
	ClassMonthlyByWeekday
	ClassWeekly
)

func (c Class) String() string {
	switch c {
	case ClassYearly:
		return "YEARLY"
	case ClassMonthlyByDate:
		return "MONTHLY-BY-DATE"
	case ClassMonthlyByWeekday:
		return "MONTHLY-BY-WEEKDAY-ORDINAL"
	case ClassWeekly:
		return "WEEKLY"
	default:
		return "NONE"
	}
}

// Condition is four independent token sets held as bitmasks: bit m of
// months, bit d of mdays, bit w of weekdays and bit o of ordinals.
type Condition struct {
	months   uint16
	mdays    uint32
	weekdays uint8
	ordinals uint8
}

// tokenKind is the closed set of recognised condition tokens.
type tokenKind int

const (
	tokenMonth tokenKind = iota + 1
	tokenWeekday
	tokenOrdinal
	tokenMonthDay
)

type token struct {
	kind  tokenKind
	value int
}

var namedTokens = func() map[string]token {
	m := make(map[string]token, 12+7+6)
	for i := 1; i <= 12; i++ {
		m[strings.ToLower(monthNames[i])] = token{tokenMonth, i}
	}
	for i, n := range weekdayNames {
		m[strings.ToLower(n)] = token{tokenWeekday, i}
	}
	for o := First; o <= Last; o++ {
		m[strings.ToLower(ordinalNames[o])] = token{tokenOrdinal, int(o)}
	}
	return m
}()

func lookupToken(s string) (token, bool) {
	if tok, ok := namedTokens[strings.ToLower(s)]; ok {
		return tok, true
	}
	if len(s) >= 1 && len(s) <= 2 {
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 31 && s[0] != '+' {
			return token{tokenMonthDay, n}, true
		}
	}
	return token{}, false
}

// Parse tokenises a whitespace or comma separated condition. Month and
// weekday tokens are three-letter names, ordinals are 1st..5th and Last,
// and days of month are 1..31; all are case-insensitive.
func Parse(s string) (Condition, error) {
	var c Condition
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	for _, f := range fields {
		tok, ok := lookupToken(f)
		if !ok {
			return Condition{}, &calendar.FormatError{Field: "cond", Value: f, Msg: "unknown condition token"}
		}
		switch tok.kind {
		case tokenMonth:
			c.months |= 1 << tok.value
		case tokenWeekday:
			c.weekdays |= 1 << tok.value
		case tokenOrdinal:
			c.ordinals |= 1 << tok.value
		case tokenMonthDay:
			c.mdays |= 1 << tok.value
		}
	}
	return c, nil
}

// MustParse is Parse for literals.
func MustParse(s string) Condition {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Condition) WithMonths(ms ...time.Month) Condition {
	for _, m := range ms {
		c.months |= 1 << m
	}
	return c
}

func (c Condition) WithMonthDays(ds ...int) Condition {
	for _, d := range ds {
		c.mdays |= 1 << d
	}
	return c
}

func (c Condition) WithWeekdays(ws ...time.Weekday) Condition {
	for _, w := range ws {
		c.weekdays |= 1 << w
	}
	return c
}

func (c Condition) WithOrdinals(ords ...Ordinal) Condition {
	for _, o := range ords {
		c.ordinals |= 1 << o
	}
	return c
}

func (c Condition) IsZero() bool { return c == Condition{} }

func (c Condition) Months() []time.Month {
	var out []time.Month
	for m := time.January; m <= time.December; m++ {
		if c.months&(1<<m) != 0 {
			out = append(out, m)
		}
	}
	return out
}

func (c Condition) MonthDays() []int {
	var out []int
	for d := 1; d <= 31; d++ {
		if c.mdays&(1<<d) != 0 {
			out = append(out, d)
		}
	}
	return out
}

func (c Condition) Weekdays() []time.Weekday {
	var out []time.Weekday
	for w := time.Sunday; w <= time.Saturday; w++ {
		if c.weekdays&(1<<w) != 0 {
			out = append(out, w)
		}
	}
	return out
}

func (c Condition) Ordinals() []Ordinal {
	var out []Ordinal
	for o := First; o <= Last; o++ {
		if c.ordinals&(1<<o) != 0 {
			out = append(out, o)
		}
	}
	return out
}

// Class applies the presence priority Months > MonthDays > Weekdays. Once a
// higher set is populated the lower ones take no part in matching.
func (c Condition) Class() Class {
	switch {
	case c.months != 0:
		return ClassYearly
	case c.mdays != 0:
		return ClassMonthlyByDate
	case c.weekdays != 0 && c.ordinals != 0:
		return ClassMonthlyByWeekday
	case c.weekdays != 0:
		return ClassWeekly
	default:
		return ClassNone
	}
}

// Matches reports whether d satisfies the condition under its class.
func (c Condition) Matches(d calendar.Date) bool {
	switch c.Class() {
	case ClassYearly:
		return c.months&(1<<d.Month()) != 0
	case ClassMonthlyByDate:
		return c.mdays&(1<<d.Day()) != 0
	case ClassMonthlyByWeekday:
		if c.weekdays&(1<<d.Weekday()) == 0 {
			return false
		}
		if c.ordinals&(1<<d.OrdinalInMonth()) != 0 {
			return true
		}
		return c.ordinals&(1<<Last) != 0 && d.InLastWeekOfMonth()
	case ClassWeekly:
		return c.weekdays&(1<<d.Weekday()) != 0
	default:
		return false
	}
}

// String is the canonical encoding: months, days of month, ordinals,
// weekdays, each in calendar order.
func (c Condition) String() string {
	var parts []string
	for _, m := range c.Months() {
		parts = append(parts, monthNames[m])
	}
	for _, d := range c.MonthDays() {
		parts = append(parts, twoDigits(d))
	}
	for _, o := range c.Ordinals() {
		parts = append(parts, ordinalNames[o])
	}
	for _, w := range c.Weekdays() {
		parts = append(parts, weekdayNames[w])
	}
	return strings.Join(parts, " ")
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
