package httpmw

import (
	"net/http"
	"strconv"
	"time"
)

// DefaultTimingHeader is used when Timing is given an empty name.
const DefaultTimingHeader = "X-Process-Time"

// Timing measures elapsed handler time and reports it on the response as
// decimal seconds with four fractional digits. The value is computed when
// the response headers are about to be written, so it covers everything the
// inner layers did. time.Now readings carry Go's monotonic clock, so the
// measurement is immune to wall-clock adjustments.
func Timing(headerName string) Middleware {
	if headerName == "" {
		headerName = DefaultTimingHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := wrapWriter(w, func(h http.Header) {
				elapsed := time.Since(start).Seconds()
				h.Set(headerName, strconv.FormatFloat(elapsed, 'f', 4, 64))
			})

			next.ServeHTTP(ww, r)
			// a handler may return without writing; the server then
			// serializes an implicit 200, which must still carry timing
			ww.flushHooks()
		})
	}
}
