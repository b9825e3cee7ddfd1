package httpmw

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/probstlabs/essentials/log"
)

// DefaultSkipPaths are the probe prefixes Logging ignores by default.
var DefaultSkipPaths = []string{"/health", "/metrics"}

// LoggingOptions configures Logging.
type LoggingOptions struct {
	// SkipPaths are path prefixes excluded from logging entirely.
	// Defaults to DefaultSkipPaths.
	SkipPaths []string
}

// Logging emits one "request started" line when a request enters and one
// "request completed" line when it leaves, both carrying the correlation ID.
// The completion line is emitted on every exit path including panics, which
// are re-raised after logging, and is logged at warn level when the status
// code falls outside [200,400).
func Logging(base log.Logger, opts LoggingOptions) Middleware {
	if base == nil {
		base = log.Nop()
	}
	skip := opts.SkipPaths
	if skip == nil {
		skip = DefaultSkipPaths
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			if reqID == "" {
				reqID = "N/A"
			}

			client := ClientIPFromContext(ctx)
			if client == "" {
				client = r.RemoteAddr
				if host, _, err := net.SplitHostPort(client); err == nil {
					client = host
				}
			}

			start := time.Now()
			base.Info(ctx, "request started",
				"request_id", reqID,
				"method", r.Method,
				"path", path,
				"query", r.URL.RawQuery,
				"client", client,
			)

			ww := wrapWriter(w)

			// A panic unwinds through the deferred completion log and then
			// keeps propagating to the error-handling layer; nothing is
			// swallowed here.
			panicked := true
			defer func() {
				fallback := http.StatusOK
				if panicked {
					// crashed before producing a response
					fallback = http.StatusInternalServerError
				}
				status := ww.Status(fallback)

				kv := []any{
					"request_id", reqID,
					"status_code", status,
					"process_time", fmt.Sprintf("%.4fs", time.Since(start).Seconds()),
				}
				if status >= 200 && status < 400 {
					base.Info(ctx, "request completed", kv...)
				} else {
					base.Warn(ctx, "request completed", kv...)
				}
			}()

			next.ServeHTTP(ww, r)
			panicked = false
		})
	}
}
