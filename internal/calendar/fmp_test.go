package calendar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(msg string, fields ...interface{})               {}
func (noopLogger) Info(msg string, fields ...interface{})                {}
func (noopLogger) Warn(msg string, fields ...interface{})                {}
func (noopLogger) Error(msg string, fields ...interface{})               {}
func (noopLogger) Fatal(msg string, fields ...interface{})               {}
func (n noopLogger) WithField(key string, value interface{}) core.ILogger { return n }
func (n noopLogger) WithFields(fields map[string]interface{}) core.ILogger {
	return n
}

func newClient(t *testing.T, baseURL, apiKey string) *Client {
	t.Helper()
	c := NewClient(config.CalendarConfig{
		APIKey:      config.Secret(apiKey),
		BaseURL:     baseURL,
		HorizonDays: 2,
	}, noopLogger{})
	return c
}

func TestUpcomingEvents_ParsesAndSorts(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "2026-08-30", r.URL.Query().Get("from"))
		assert.Equal(t, "2026-09-01", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"date":"2026-08-31 14:30:00","event":"CPI YoY","impact":"High"},
			{"date":"2026-08-30 12:00:00","event":"PMI","impact":"Medium"},
			{"date":"2026-08-29 09:00:00","event":"Past event","impact":"Low"},
			{"date":"not-a-date","event":"Broken","impact":"Low"}
		]`))
	}))
	defer server.Close()

	c := newClient(t, server.URL, "test-key")
	c.now = func() time.Time { return now }

	events := c.UpcomingEvents(context.Background(), 2)
	require.Len(t, events, 2, "past and malformed entries are dropped")
	assert.Equal(t, "PMI", events[0].Title)
	assert.Equal(t, "CPI YoY", events[1].Title)
	assert.Equal(t, "High", events[1].Impact)
}

func TestUpcomingEvents_NoAPIKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := newClient(t, server.URL, "")
	events := c.UpcomingEvents(context.Background(), 2)
	assert.Empty(t, events)
	assert.False(t, called, "no request should be made without a key")
}

func TestUpcomingEvents_ServerErrorDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := newClient(t, server.URL, "bad-key")
	events := c.UpcomingEvents(context.Background(), 2)
	assert.Empty(t, events)
}

func TestUpcomingEvents_MalformedBodyDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	c := newClient(t, server.URL, "test-key")
	events := c.UpcomingEvents(context.Background(), 2)
	assert.Empty(t, events)
}
