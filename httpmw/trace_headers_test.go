package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceResponseHeaders_NoSpan(t *testing.T) {
	rec := httptest.NewRecorder()
	TraceResponseHeaders("", "")(okHandler()).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Header().Get(DefaultTraceIDHeader) != "" || rec.Header().Get(DefaultSpanIDHeader) != "" {
		t.Fatal("trace headers present without a span")
	}
}

func TestTraceResponseHeaders_WithSpan(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:  trace.SpanID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11},
	})

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))

	rec := httptest.NewRecorder()
	TraceResponseHeaders("", "")(okHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get(DefaultTraceIDHeader); got != sc.TraceID().String() {
		t.Fatalf("%s = %q, want %q", DefaultTraceIDHeader, got, sc.TraceID().String())
	}
	if got := rec.Header().Get(DefaultSpanIDHeader); got != sc.SpanID().String() {
		t.Fatalf("%s = %q, want %q", DefaultSpanIDHeader, got, sc.SpanID().String())
	}
}

func TestTraceResponseHeaders_CustomNames(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01},
		SpanID:  trace.SpanID{0x01},
	})

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req = req.WithContext(trace.ContextWithSpanContext(req.Context(), sc))

	rec := httptest.NewRecorder()
	TraceResponseHeaders("Trace-Id", "Span-Id")(okHandler()).ServeHTTP(rec, req)

	if rec.Header().Get("Trace-Id") == "" || rec.Header().Get("Span-Id") == "" {
		t.Fatal("custom trace headers missing")
	}
}
