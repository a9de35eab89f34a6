package schedule

import (
	"errors"
	"strconv"
	"strings"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
)

const headerPrefix = "X-SC-"

// headerKey is the closed set of X-SC- headers a record may carry.
type headerKey int

const (
	headerSubject headerKey = iota + 1
	headerLocation
	headerDay
	headerTime
	headerCategory
	headerPriority
	headerCond
	headerDuration
	headerAlarm
	headerRecordID
)

// headerNames is also the emission order.
var headerNames = [...]string{
	headerSubject:  "Subject",
	headerLocation: "Location",
	headerDay:      "Day",
	headerTime:     "Time",
	headerCategory: "Category",
	headerPriority: "Priority",
	headerCond:     "Cond",
	headerDuration: "Duration",
	headerAlarm:    "Alarm",
	headerRecordID: "Record-Id",
}

func (k headerKey) String() string { return headerPrefix + headerNames[k] }

func lookupHeader(name string) (headerKey, bool) {
	for k := headerSubject; k <= headerRecordID; k++ {
		if strings.EqualFold(headerNames[k], name) {
			return k, true
		}
	}
	return 0, false
}

type headerField struct {
	value string
	line  int
}

// Parse reads one record: X-SC- headers, other header lines, a blank line,
// then the free-text body. Folded header values (continuation lines that
// start with whitespace) are unfolded before parsing.
func Parse(data []byte) (*Entry, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	header, body, _ := strings.Cut(text, "\n\n")
	if strings.HasPrefix(text, "\n") {
		header, body = "", text[1:]
	}

	fields := make(map[headerKey]*headerField)
	var (
		extra   []string
		current *headerField
	)
	for i, line := range strings.Split(header, "\n") {
		lineNo := i + 1
		switch {
		case line == "":
			current = nil
		case (line[0] == ' ' || line[0] == '\t') && current != nil:
			current.value += " " + strings.TrimSpace(line)
		case hasHeaderPrefix(line):
			name, value, ok := strings.Cut(line[len(headerPrefix):], ":")
			if !ok {
				return nil, &calendar.FormatError{Line: lineNo, Value: line, Msg: "malformed header line"}
			}
			key, known := lookupHeader(strings.TrimSpace(name))
			if !known {
				return nil, &calendar.FormatError{Line: lineNo, Field: headerPrefix + name, Msg: "unknown header"}
			}
			current = &headerField{value: strings.TrimSpace(value), line: lineNo}
			fields[key] = current
		default:
			current = nil
			extra = append(extra, line)
		}
	}

	e := &Entry{Headers: extra, Body: strings.TrimSuffix(body, "\n")}
	for key := headerSubject; key <= headerRecordID; key++ {
		f, ok := fields[key]
		if !ok {
			continue
		}
		if err := e.applyHeader(key, f.value); err != nil {
			return nil, withPosition(err, key, f.line)
		}
	}
	return e, nil
}

func hasHeaderPrefix(line string) bool {
	return len(line) > len(headerPrefix) && strings.EqualFold(line[:len(headerPrefix)], headerPrefix)
}

func (e *Entry) applyHeader(key headerKey, value string) error {
	var err error
	switch key {
	case headerSubject:
		e.Subject = value
	case headerLocation:
		e.Location = value
	case headerDay:
		if e.Dates, err = calendar.ParseDateList(value, ""); err != nil {
			return err
		}
		e.Exceptions, err = calendar.ParseDateList(value, calendar.ExceptionPrefix)
	case headerTime:
		e.Time, err = calendar.ParseTimeRange(value)
	case headerCategory:
		e.Categories = parseCategories(value)
	case headerPriority:
		e.Priority, err = parsePriority(value)
	case headerCond:
		e.Cond, err = recurrence.Parse(value)
	case headerDuration:
		e.Duration, err = calendar.ParseDateRange(value)
	case headerAlarm:
		e.Alarm, err = calendar.ParseLeadTime(value)
	case headerRecordID:
		e.recordID = value
		e.UID = strings.Trim(value, "<>")
	}
	return err
}

func withPosition(err error, key headerKey, line int) error {
	var fe *calendar.FormatError
	if errors.As(err, &fe) {
		positioned := *fe
		positioned.Line = line
		positioned.Field = key.String()
		return &positioned
	}
	return &calendar.FormatError{Line: line, Field: key.String(), Msg: err.Error()}
}

func parseCategories(value string) []string {
	var out []string
	for _, c := range strings.Fields(value) {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have, c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

func parsePriority(value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, &calendar.FormatError{Value: value, Msg: "priority must be an integer"}
	}
	return &n, nil
}

// Marshal writes the record in its canonical form. Every X-SC- header is
// emitted, empty ones included, followed by preserved header lines, a blank
// line and the body.
func (e *Entry) Marshal() []byte {
	var b strings.Builder
	for k := headerSubject; k <= headerRecordID; k++ {
		b.WriteString(k.String())
		b.WriteString(": ")
		b.WriteString(e.headerValue(k))
		b.WriteString("\n")
	}
	for _, h := range e.Headers {
		b.WriteString(h)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if e.Body != "" {
		b.WriteString(e.Body)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func (e *Entry) headerValue(key headerKey) string {
	switch key {
	case headerSubject:
		return oneLine(e.Subject)
	case headerLocation:
		return oneLine(e.Location)
	case headerDay:
		return e.Dates.String() + " " + e.Exceptions.Format(calendar.ExceptionPrefix)
	case headerTime:
		return e.Time.String()
	case headerCategory:
		return strings.Join(e.Categories, " ")
	case headerPriority:
		if e.Priority == nil {
			return ""
		}
		return strconv.Itoa(*e.Priority)
	case headerCond:
		return e.Cond.String()
	case headerDuration:
		return e.Duration.String()
	case headerAlarm:
		return e.Alarm.String()
	case headerRecordID:
		if e.recordID != "" && strings.Trim(e.recordID, "<>") == e.UID {
			return oneLine(e.recordID)
		}
		return oneLine(e.UID)
	}
	return ""
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ").Replace(s)
}
