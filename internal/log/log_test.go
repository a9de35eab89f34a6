package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFormatsKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)
	l.now = func() time.Time { return time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC) }

	l.Info("entry stored", "uid", "abc", "keys", 3)
	l.Error("load failed", errors.New("boom"), "source", "x.mhc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-01-07T09:00:00Z [INFO] entry stored uid=abc keys=3", lines[0])
	assert.Equal(t, "2024-01-07T09:00:00Z [ERROR] load failed err=boom source=x.mhc", lines[1])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)

	l.Debug("hidden")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel(LevelDebug)
	l.Debug("shown", "odd")
	assert.Contains(t, buf.String(), "[DEBUG] shown")
	assert.NotContains(t, buf.String(), "odd")
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Info("nothing")
	l.Error("nothing", errors.New("x"))
	l.SetLevel(LevelDebug)
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lv)

	lv, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lv)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
