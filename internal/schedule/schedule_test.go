package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
)

func date(y int, m time.Month, d int) calendar.Date {
	return calendar.MustDate(y, m, d)
}

const sampleRecord = "X-SC-Subject: Team sync\n" +
	"X-SC-Location: Room 4\n" +
	"X-SC-Day: 20240105 !20240108\n" +
	"X-SC-Time: 10:00-11:30\n" +
	"X-SC-Category: Work Meeting\n" +
	"X-SC-Priority: 3\n" +
	"X-SC-Cond: Mon\n" +
	"X-SC-Duration: 20240101-20241231\n" +
	"X-SC-Alarm: 15 minute\n" +
	"X-SC-Record-Id: abc-123\n" +
	"X-Mailer: mhcal\n" +
	"\n" +
	"Agenda lives in the wiki.\n"

func TestParseRecord(t *testing.T) {
	e, err := Parse([]byte(sampleRecord))
	require.NoError(t, err)

	assert.Equal(t, "abc-123", e.UID)
	assert.Equal(t, "Team sync", e.Subject)
	assert.Equal(t, "Room 4", e.Location)
	assert.Equal(t, []calendar.Date{date(2024, time.January, 5)}, e.Dates.Dates())
	assert.Equal(t, []calendar.Date{date(2024, time.January, 8)}, e.Exceptions.Dates())
	assert.Equal(t, "10:00-11:30", e.Time.String())
	assert.Equal(t, []string{"Work", "Meeting"}, e.Categories)
	require.NotNil(t, e.Priority)
	assert.Equal(t, 3, *e.Priority)
	assert.Equal(t, recurrence.ClassWeekly, e.Cond.Class())
	assert.Equal(t, "20240101-20241231", e.Duration.String())
	assert.Equal(t, 15*time.Minute, e.Alarm.Duration())
	assert.Equal(t, []string{"X-Mailer: mhcal"}, e.Headers)
	assert.Equal(t, "Agenda lives in the wiki.", e.Body)
}

func TestMarshalRoundTrip(t *testing.T) {
	e, err := Parse([]byte(sampleRecord))
	require.NoError(t, err)

	out := e.Marshal()
	assert.Equal(t, sampleRecord, string(out))

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, e, again)
}

func TestMarshalEmptyEntry(t *testing.T) {
	e := &Entry{UID: "x"}
	want := "X-SC-Subject: \n" +
		"X-SC-Location: \n" +
		"X-SC-Day:  \n" +
		"X-SC-Time: \n" +
		"X-SC-Category: \n" +
		"X-SC-Priority: \n" +
		"X-SC-Cond: \n" +
		"X-SC-Duration: \n" +
		"X-SC-Alarm: \n" +
		"X-SC-Record-Id: x\n" +
		"\n"
	assert.Equal(t, want, string(e.Marshal()))

	back, err := Parse(e.Marshal())
	require.NoError(t, err)
	assert.Equal(t, "x", back.UID)
	assert.Nil(t, back.Priority)
	assert.False(t, back.Alarm.IsSet())
	assert.Empty(t, back.Body)
}

func TestParseUnknownHeader(t *testing.T) {
	_, err := Parse([]byte("X-SC-Subject: a\nX-SC-Colour: red\n\n"))
	var fe *calendar.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Line)
	assert.Equal(t, "X-SC-Colour", fe.Field)
}

func TestParseBadValueCarriesLine(t *testing.T) {
	_, err := Parse([]byte("X-SC-Subject: a\nX-SC-Record-Id: r\nX-SC-Day: 2024-01-01\n\n"))
	var fe *calendar.FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Line)
	assert.Equal(t, "X-SC-Day", fe.Field)
}

func TestParseFoldedAndCRLF(t *testing.T) {
	raw := "X-SC-Subject: Long\r\n  subject line\r\nx-sc-record-id: <r1>\r\n\r\nbody\r\n"
	e, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Long subject line", e.Subject)
	assert.Equal(t, "r1", e.UID)
	assert.Equal(t, "body", e.Body)
}

func TestMarshalKeepsBracketedRecordID(t *testing.T) {
	e, err := Parse([]byte("X-SC-Subject: a\nX-SC-Record-Id: <abc@x>\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc@x", e.UID)
	assert.Contains(t, string(e.Marshal()), "X-SC-Record-Id: <abc@x>\n")

	renamed := e.Clone()
	renamed.UID = "other"
	assert.Contains(t, string(renamed.Marshal()), "X-SC-Record-Id: other\n")
}

func TestParseReportsSameErrorEveryTime(t *testing.T) {
	raw := []byte("X-SC-Time: 99:99\nX-SC-Subject: a\nX-SC-Day: bad\nX-SC-Cond: Mo\n\n")
	for i := 0; i < 20; i++ {
		_, err := Parse(raw)
		var fe *calendar.FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "X-SC-Day", fe.Field)
		assert.Equal(t, 3, fe.Line)
	}
}

func TestOccursExceptionBeatsExplicitDate(t *testing.T) {
	d := date(2024, time.March, 3)
	e := &Entry{
		Dates:      calendar.NewDateList(d),
		Exceptions: calendar.NewDateList(d),
	}
	assert.False(t, e.Occurs(d))
}

func TestOccursWeeklyWithinDuration(t *testing.T) {
	e := &Entry{
		Cond:     recurrence.MustParse("Sun"),
		Duration: calendar.Between(date(2024, time.January, 1), date(2024, time.January, 31)),
	}
	assert.True(t, e.Occurs(date(2024, time.January, 7)))
	assert.False(t, e.Occurs(date(2024, time.January, 8)))
	assert.False(t, e.Occurs(date(2024, time.February, 4)))
	assert.False(t, e.Occurs(date(2023, time.December, 31)))
}

func TestFirstOccurrence(t *testing.T) {
	weekly := &Entry{
		Cond:     recurrence.MustParse("Wed"),
		Duration: calendar.From(date(2024, time.January, 1)),
	}
	got, ok := weekly.FirstOccurrence()
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 3), got)

	explicitFirst := &Entry{
		Dates:    calendar.NewDateList(date(2024, time.January, 2)),
		Cond:     recurrence.MustParse("Wed"),
		Duration: calendar.From(date(2024, time.January, 1)),
	}
	got, ok = explicitFirst.FirstOccurrence()
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 2), got)

	unbounded := &Entry{Cond: recurrence.MustParse("Sat")}
	got, ok = unbounded.FirstOccurrence()
	require.True(t, ok)
	assert.Equal(t, Epoch, got)

	never := &Entry{
		Dates:      calendar.NewDateList(date(2024, time.May, 1)),
		Exceptions: calendar.NewDateList(date(2024, time.May, 1)),
	}
	_, ok = never.FirstOccurrence()
	assert.False(t, ok)
}

func TestSlotKeys(t *testing.T) {
	e := &Entry{
		Dates: calendar.NewDateList(date(2024, time.February, 29)),
		Cond:  recurrence.MustParse("2nd Tue"),
	}
	assert.Equal(t, []recurrence.SlotKey{"20240229", "all/2nd/Tue"}, e.SlotKeys())
}

func TestCloneIsDeep(t *testing.T) {
	p := 1
	e := &Entry{UID: "u", Categories: []string{"A"}, Priority: &p, Headers: []string{"X-A: b"}}
	c := e.Clone()
	c.Categories[0] = "B"
	*c.Priority = 9
	c.Headers[0] = "X-A: c"
	assert.Equal(t, "A", e.Categories[0])
	assert.Equal(t, 1, *e.Priority)
	assert.Equal(t, "X-A: b", e.Headers[0])
}

func TestHasCategoryIgnoresCase(t *testing.T) {
	e := &Entry{Categories: []string{"Holiday", "todo"}}
	assert.True(t, e.HasCategory("holiday"))
	assert.True(t, e.IsTodo())
	assert.False(t, e.HasCategory("work"))
}
