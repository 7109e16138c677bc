package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveTask(t *testing.T) {
	before := testutil.ToFloat64(scraperTasksTotal.WithLabelValues(StatusSucceeded))
	ObserveTask(StatusSucceeded, 250*time.Millisecond)
	after := testutil.ToFloat64(scraperTasksTotal.WithLabelValues(StatusSucceeded))
	if after-before != 1 {
		t.Errorf("expected succeeded counter to grow by 1, got %f", after-before)
	}
}

func TestGauges(t *testing.T) {
	base := testutil.ToFloat64(scraperActiveContexts)
	IncActiveContexts()
	IncActiveContexts()
	DecActiveContexts()
	if got := testutil.ToFloat64(scraperActiveContexts) - base; got != 1 {
		t.Errorf("expected active contexts delta 1, got %f", got)
	}

	base = testutil.ToFloat64(scraperInflightTasks)
	IncInflightTasks()
	DecInflightTasks()
	if got := testutil.ToFloat64(scraperInflightTasks) - base; got != 0 {
		t.Errorf("expected inflight delta 0, got %f", got)
	}
}

func TestObserveBlockedRequestLowercases(t *testing.T) {
	before := testutil.ToFloat64(driverBlockedRequestsTotal.WithLabelValues("image"))
	ObserveBlockedRequest("Image")
	if got := testutil.ToFloat64(driverBlockedRequestsTotal.WithLabelValues("image")) - before; got != 1 {
		t.Errorf("expected image counter to grow by 1, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
