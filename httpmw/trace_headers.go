package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Default response header names for trace correlation.
const (
	DefaultTraceIDHeader = "X-Trace-Id"
	DefaultSpanIDHeader  = "X-Span-Id"
)

// TraceResponseHeaders echoes the current trace and span IDs on the response
// when a valid span is in the request context, so clients can correlate a
// response with its trace the same way the request ID correlates logs.
// Requests with no recording span (health checks, unsampled traffic) get no
// headers. Empty names select DefaultTraceIDHeader and DefaultSpanIDHeader.
func TraceResponseHeaders(traceHeader, spanHeader string) Middleware {
	if traceHeader == "" {
		traceHeader = DefaultTraceIDHeader
	}
	if spanHeader == "" {
		spanHeader = DefaultSpanIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				h := w.Header()
				h.Set(traceHeader, sc.TraceID().String())
				h.Set(spanHeader, sc.SpanID().String())
			}
			next.ServeHTTP(w, r)
		})
	}
}
