package httpmw

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestTiming_HeaderPresent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	Timing("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	raw := rec.Header().Get(DefaultTimingHeader)
	if raw == "" {
		t.Fatal("timing header missing")
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		t.Fatalf("timing header %q does not parse: %v", raw, err)
	}
	if v < 0 {
		t.Fatalf("timing = %f, want non-negative", v)
	}
	if v >= 1.0 {
		t.Fatalf("timing = %f, implausibly slow for a no-op handler", v)
	}
}

func TestTiming_FourFractionalDigits(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	Timing("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	raw := rec.Header().Get(DefaultTimingHeader)
	_, frac, found := strings.Cut(raw, ".")
	if !found || len(frac) != 4 {
		t.Fatalf("timing %q not formatted with 4 fractional digits", raw)
	}
}

func TestTiming_CoversHandlerSleep(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	Timing("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	v, err := strconv.ParseFloat(rec.Header().Get(DefaultTimingHeader), 64)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v < 0.1 || v >= 0.2 {
		t.Fatalf("timing = %f, want within [0.1, 0.2)", v)
	}
}

func TestTiming_CustomHeaderName(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	Timing("X-Duration")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Header().Get("X-Duration") == "" {
		t.Fatal("custom timing header missing")
	}
	if rec.Header().Get(DefaultTimingHeader) != "" {
		t.Fatal("default timing header should be absent")
	}
}

func TestTiming_ImplicitWriteHeader(t *testing.T) {
	// Handlers that only Write still get a timing header.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	})

	rec := httptest.NewRecorder()
	Timing("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Header().Get(DefaultTimingHeader) == "" {
		t.Fatal("timing header missing on implicit WriteHeader")
	}
	if rec.Body.String() != "body" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestTiming_NoWriteHandler(t *testing.T) {
	// A handler that returns without touching the writer at all still
	// gets a timing header on the server's implicit 200.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	Timing("")(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	raw := rec.Header().Get(DefaultTimingHeader)
	if raw == "" {
		t.Fatal("timing header missing on no-write handler")
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		t.Fatalf("timing header %q does not parse: %v", raw, err)
	}
}
