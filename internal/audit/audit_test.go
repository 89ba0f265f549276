package audit

import (
	"log/slog"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

func TestClientIP_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")

	ip := clientIP(r)
	want := netip.MustParseAddr("203.0.113.50")
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")

	ip := clientIP(r)
	want := netip.MustParseAddr("198.51.100.23")
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := netip.MustParseAddr("192.0.2.1")
	if ip != want {
		t.Errorf("clientIP = %v, want %v", ip, want)
	}
}

func TestClientIP_Precedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := netip.MustParseAddr("203.0.113.50")
	if ip != want {
		t.Errorf("clientIP = %v, want %v (X-Forwarded-For should take precedence)", ip, want)
	}
}

func TestClientIP_InvalidXFF(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.RemoteAddr = "192.0.2.1:12345"

	ip := clientIP(r)
	want := netip.MustParseAddr("192.0.2.1")
	if ip != want {
		t.Errorf("clientIP = %v, want %v (should fall back to RemoteAddr)", ip, want)
	}
}

func TestLog_DropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// The background goroutine is not started, so nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Actor: "admin@hearth.local", Action: "tenant.create", HomeName: "acme"})
	}

	// The next log must be dropped without blocking.
	w.Log(Entry{Actor: "admin@hearth.local", Action: "dropped", HomeName: "dropped"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogRequest_AnnotatesIP(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Not started; the test reads from the channel directly.

	r := httptest.NewRequest("POST", "/home/admin/api/tenants", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")

	w.LogRequest(r, "admin@hearth.local", "tenant.create", "acme", "engine=sqlserver")

	entry := <-w.entries
	if entry.Actor != "admin@hearth.local" {
		t.Errorf("Actor = %q", entry.Actor)
	}
	if entry.Action != "tenant.create" {
		t.Errorf("Action = %q", entry.Action)
	}
	if entry.HomeName != "acme" {
		t.Errorf("HomeName = %q", entry.HomeName)
	}
	if !strings.Contains(entry.Detail, "engine=sqlserver") || !strings.Contains(entry.Detail, "ip=198.51.100.23") {
		t.Errorf("Detail = %q, want engine and ip annotations", entry.Detail)
	}
}
