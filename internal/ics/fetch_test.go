package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchEvents(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:one",
		"SUMMARY:Standup",
		"DTSTART:20240115T090000Z",
		"DTSTAMP:20240114T000000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	events, err := NewClient(testLogger()).FetchEvents(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "one", events[0].UID)
}

func TestFetchRejectsNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(testLogger()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, "403")
}

func TestFetchRejectsHTMLBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"))
	}))
	defer srv.Close()

	_, err := NewClient(testLogger()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, "HTML")
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, validateFormat([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")))
	assert.Error(t, validateFormat([]byte("hello world")))
}

func TestRedactURL(t *testing.T) {
	redacted := redactURL("https://outlook.office365.com/owa/calendar/secret-token/calendar.ics")
	assert.Equal(t, "https://outlook.office365.com/...(redacted)", redacted)
	assert.False(t, strings.Contains(redacted, "secret-token"))

	assert.Equal(t, "(redacted)", redactURL("not a url"))
}
