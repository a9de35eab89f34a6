package store

import (
	"fmt"
	"strings"
	"time"
)

// Op is the kind of a change log record.
type Op byte

const (
	OpModify Op = 'M'
	OpDelete Op = 'D'
)

func (o Op) String() string {
	switch o {
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("Op(%c)", byte(o))
}

// MarshalText encodes the op as its log letter.
func (o Op) MarshalText() ([]byte, error) { return []byte{byte(o)}, nil }

// Change is one audit record: what happened to which uid and when, with
// the subject as it was at that time.
type Change struct {
	Op      Op        `json:"op"`
	Time    time.Time `json:"time"`
	UID     string    `json:"uid"`
	Subject string    `json:"subject"`
}

// Line renders the tab separated log line, without newline.
func (c Change) Line() string {
	return strings.Join([]string{
		string(c.Op),
		c.Time.Format(time.RFC3339),
		logField(c.UID),
		logField(c.Subject),
	}, "\t")
}

func parseChange(line string) (Change, error) {
	parts := strings.SplitN(line, "\t", 4)
	if len(parts) != 4 {
		return Change{}, fmt.Errorf("store: log line has %d fields, want 4", len(parts))
	}
	if len(parts[0]) != 1 || (Op(parts[0][0]) != OpModify && Op(parts[0][0]) != OpDelete) {
		return Change{}, fmt.Errorf("store: unknown log op %q", parts[0])
	}
	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return Change{}, fmt.Errorf("store: log time: %w", err)
	}
	return Change{Op: Op(parts[0][0]), Time: ts, UID: parts[2], Subject: parts[3]}, nil
}

func logField(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}
