package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/probstlabs/essentials/health"
	"github.com/probstlabs/essentials/httpmw"
	"github.com/probstlabs/essentials/log"
	"github.com/probstlabs/essentials/metrics"
)

// Options configures the full production handler and server.
type Options struct {
	Logger log.Logger
	Port   int

	// Middleware configures the core stack; its Logger field is
	// overridden by Logger above.
	Middleware httpmw.EssentialsOptions

	// ClientIP controls proxy trust for client address resolution.
	ClientIP httpmw.ClientIPOptions

	// Metrics, when set, instruments every request and mounts its
	// handler at /metrics. Its panic counter becomes the default
	// OnPanic hook.
	Metrics *metrics.ServerMetrics

	// RateLimitMW, when set, is installed after client IP resolution.
	RateLimitMW func(http.Handler) http.Handler

	// Live and Ready back the /health endpoints. nil probes pass.
	Live  health.Probe
	Ready health.Probe

	// Routes registers the application's routes on the router.
	Routes func(chi.Router)
}
