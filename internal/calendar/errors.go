package calendar

import (
	"fmt"
	"strings"
)

// FormatError reports a malformed date, time, condition or record token.
// Source and Line are filled in by callers that know them (record parser,
// store loader); value parsers only set Field, Value and Msg.
type FormatError struct {
	Source string
	Line   int
	Field  string
	Value  string
	Msg    string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	} else if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Value != "" {
		fmt.Fprintf(&b, " (%q)", e.Value)
	}
	return b.String()
}

func formatErr(field, value, msg string) *FormatError {
	return &FormatError{Field: field, Value: value, Msg: msg}
}
