package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherRevalidatesWithETag(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))

	f, err := NewFetcher(t.TempDir(), srv.Client())
	require.NoError(t, err)
	src := Source{ID: "feed", URL: srv.URL + "/private.ics?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())

	// An unreachable server falls back to the cached body.
	srv.Close()
	third, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, first.Body, third.Body)
}

func TestFetchAllCollectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f, err := NewFetcher(t.TempDir(), srv.Client())
	require.NoError(t, err)
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "bad", URL: srv.URL + "/a.ics"},
		{ID: "empty"},
	})
	assert.Empty(t, results)
	require.Len(t, errs, 2)
	assert.NotContains(t, errs[0].Error(), "/a.ics")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/u/1/basic.ics?key=abc"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}

func TestNewFetcherNeedsCacheDir(t *testing.T) {
	_, err := NewFetcher("", nil)
	assert.Error(t, err)
}
