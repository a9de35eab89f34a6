package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhcal/internal/calendar"
)

const dentistICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:dentist@example.com
DTSTAMP:20240501T000000Z
SUMMARY:Dentist
DTSTART;VALUE=DATE:20240508
DTEND;VALUE=DATE:20240509
END:VEVENT
END:VCALENDAR
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestImportSearchDelete(t *testing.T) {
	dir := t.TempDir()
	icsPath := filepath.Join(dir, "dentist.ics")
	require.NoError(t, os.WriteFile(icsPath, []byte(strings.ReplaceAll(dentistICS, "\n", "\r\n")), 0o600))

	global := []string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--data-dir", filepath.Join(dir, "data"),
		"--log-level", "error",
	}
	run := func(args ...string) string { return execute(t, append(args, global...)...) }

	out := run("log")
	assert.Contains(t, out, "No changes recorded in "+filepath.Join(dir, "data"))

	out = run("import", "--dry-run=false", "--category", "Health", icsPath)
	assert.Contains(t, out, "Imported 1 entries, 0 skipped")

	out = run("search", "--from", "20240508", "--days", "1", "--to", "", "--category", "health", "--format", "json")
	assert.Contains(t, out, `"summary": "Dentist"`)
	assert.Contains(t, out, `"instance_key": "dentist@example.com/20240508"`)

	out = run("show", "--upcoming", "0", "dentist@example.com")
	assert.Contains(t, out, "X-SC-Subject: Dentist")
	assert.Contains(t, out, "Health")

	out = run("delete", "--force", "dentist@example.com")
	assert.Contains(t, out, "Deleted 'dentist@example.com'")

	out = run("log", "--limit", "0", "--format", "json")
	assert.Contains(t, out, `"op": "M"`)
	assert.Contains(t, out, `"op": "D"`)
}

func TestWindow(t *testing.T) {
	today := calendar.MustDate(2024, 5, 7)

	from, to, err := window("", "", 7, today)
	require.NoError(t, err)
	assert.Equal(t, today, from)
	assert.Equal(t, calendar.MustDate(2024, 5, 13), to)

	from, to, err = window("20240501", "20240502", 7, today)
	require.NoError(t, err)
	assert.Equal(t, calendar.MustDate(2024, 5, 1), from)
	assert.Equal(t, calendar.MustDate(2024, 5, 2), to)

	_, _, err = window("20240502", "20240501", 7, today)
	assert.Error(t, err)
	_, _, err = window("", "", 0, today)
	assert.Error(t, err)
	_, _, err = window("May 1", "", 7, today)
	assert.Error(t, err)
}
