package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhcal/internal/calendar"
	"mhcal/internal/recurrence"
	"mhcal/internal/schedule"
)

func TestSlot(t *testing.T) {
	cases := []struct {
		name  string
		entry *schedule.Entry
		want  string
	}{
		{"single date", &schedule.Entry{Dates: calendar.NewDateList(date(2024, time.March, 9))}, "2024/03"},
		{"same month", &schedule.Entry{Dates: calendar.NewDateList(date(2024, time.March, 9), date(2024, time.March, 30))}, "2024/03"},
		{"two months", &schedule.Entry{Dates: calendar.NewDateList(date(2024, time.March, 9), date(2024, time.April, 1))}, "intersect"},
		{"recurring", &schedule.Entry{Cond: recurrence.MustParse("Mon")}, "intersect"},
		{"todo", &schedule.Entry{Dates: calendar.NewDateList(date(2024, time.March, 9)), Categories: []string{"Todo"}}, "intersect"},
		{"no dates", &schedule.Entry{}, "intersect"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Slot(tc.entry))
		})
	}
}

func TestOpenPersistsAcrossRestarts(t *testing.T) {
	root := t.TempDir()

	s, loadErrs, err := Open(root, WithClock(fixedClock()))
	require.NoError(t, err)
	require.Empty(t, loadErrs)

	meeting := &schedule.Entry{
		UID:     "team/sync@example.com",
		Subject: "Team sync",
		Cond:    recurrence.MustParse("Mon"),
		Time:    calendar.Between(calendar.NewTimeOfDay(9, 30), calendar.NewTimeOfDay(10, 0)),
	}
	trip := &schedule.Entry{UID: "trip", Subject: "Trip", Dates: calendar.NewDateList(date(2024, time.August, 12))}
	require.NoError(t, s.Insert(meeting))
	require.NoError(t, s.Insert(trip))

	assert.FileExists(t, filepath.Join(root, "intersect", "team%2Fsync%40example.com.mhc"))
	assert.FileExists(t, filepath.Join(root, "2024", "08", "trip.mhc"))

	// Moving the trip to another month moves its file.
	moved := trip.Clone()
	moved.Dates = calendar.NewDateList(date(2024, time.September, 2))
	require.NoError(t, s.Insert(moved))
	assert.NoFileExists(t, filepath.Join(root, "2024", "08", "trip.mhc"))
	assert.FileExists(t, filepath.Join(root, "2024", "09", "trip.mhc"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "intersect", "broken.mhc"), []byte("X-SC-Nope: x\n\n"), 0o600))

	reopened, loadErrs, err := Open(root)
	require.NoError(t, err)
	require.Len(t, loadErrs, 1)
	assert.Contains(t, loadErrs[0].Error(), "broken.mhc")
	assert.Equal(t, 2, reopened.Len())

	got, err := reopened.FindByUID(meeting.UID)
	require.NoError(t, err)
	assert.Equal(t, "Team sync", got.Subject)
	assert.Equal(t, []string{meeting.UID}, uids(reopened.Search(date(2024, time.August, 12), nil)))
	assert.Len(t, reopened.Search(date(2024, time.September, 2), nil), 2)

	require.NoError(t, reopened.Delete("trip"))
	assert.NoFileExists(t, filepath.Join(root, "2024", "09", "trip.mhc"))
}

func TestDirChangeLog(t *testing.T) {
	root := t.TempDir()
	s, _, err := Open(root, WithClock(fixedClock()))
	require.NoError(t, err)

	require.NoError(t, s.Insert(&schedule.Entry{UID: "a", Subject: "tab\there"}))
	require.NoError(t, s.Delete("a"))

	d, err := OpenDir(root)
	require.NoError(t, err)
	changes, err := d.ReadLog()
	require.NoError(t, err)

	ts := fixedClock()()
	assert.Equal(t, []Change{
		{Op: OpModify, Time: ts, UID: "a", Subject: "tab here"},
		{Op: OpDelete, Time: ts, UID: "a", Subject: "tab here"},
	}, changes)
}

func TestReadLogMissingFile(t *testing.T) {
	d, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	changes, err := d.ReadLog()
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestOpenDirRejectsEmptyPath(t *testing.T) {
	_, err := OpenDir("")
	assert.Error(t, err)
}

func writeRecord(t *testing.T, root, rel, data string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestDeleteFindsFileByRecordID(t *testing.T) {
	root := t.TempDir()
	path := writeRecord(t, root, "2024/07/1.mhc",
		"X-SC-Subject: Real\nX-SC-Day: 20240710\nX-SC-Record-Id: real\n\n")

	s, loadErrs, err := Open(root)
	require.NoError(t, err)
	require.Empty(t, loadErrs)
	require.NoError(t, s.Delete("real"))
	assert.NoFileExists(t, path)

	reopened, _, err := Open(root)
	require.NoError(t, err)
	_, err = reopened.FindByUID("real")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, reopened.Len())
}

func TestInsertReplacesEveryFileOfUID(t *testing.T) {
	root := t.TempDir()
	first := writeRecord(t, root, "2024/07/odd-name.mhc",
		"X-SC-Subject: One\nX-SC-Day: 20240710\nX-SC-Record-Id: dup\n\n")
	second := writeRecord(t, root, "intersect/other.mhc",
		"X-SC-Subject: Two\nX-SC-Day: 20240710\nX-SC-Record-Id: dup\n\n")

	s, _, err := Open(root)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Insert(&schedule.Entry{
		UID: "dup", Subject: "Three", Dates: calendar.NewDateList(date(2024, time.July, 10)),
	}))
	assert.NoFileExists(t, first)
	assert.NoFileExists(t, second)
	assert.FileExists(t, filepath.Join(root, "2024", "07", "dup.mhc"))

	reopened, _, err := Open(root)
	require.NoError(t, err)
	got, err := reopened.FindByUID("dup")
	require.NoError(t, err)
	assert.Equal(t, "Three", got.Subject)
}

func TestDirRoot(t *testing.T) {
	root := t.TempDir()
	d, err := OpenDir(root)
	require.NoError(t, err)
	assert.Equal(t, root, d.Root())
}
