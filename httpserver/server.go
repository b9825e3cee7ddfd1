// Package httpserver assembles the full middleware stack into a runnable
// HTTP server with graceful shutdown.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/probstlabs/essentials/health"
	"github.com/probstlabs/essentials/httpmw"
	"github.com/probstlabs/essentials/log"
	"github.com/probstlabs/essentials/xerrors"
)

// NewHandler builds the routed handler with the full middleware stack.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	r := chi.NewRouter()

	mwOpts := opts.Middleware
	mwOpts.Logger = opts.Logger
	if mwOpts.OnPanic == nil && opts.Metrics != nil {
		mwOpts.OnPanic = opts.Metrics.IncPanic
	}

	// metrics first so it observes the status the error handler writes
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	httpmw.Essentials(r, mwOpts)

	health.NewAPI(opts.Live, opts.Ready).RegisterRoutes(r)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	if opts.Routes != nil {
		opts.Routes(r)
	}

	// Outer layers (outermost last in wrapping order)
	var h http.Handler = r

	// trace-id response headers for any request with a recording span
	h = httpmw.TraceResponseHeaders("", "")(h)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// rate limiting keys on the resolved client IP, so it sits inside
	// the client IP layer
	if opts.RateLimitMW != nil {
		h = opts.RateLimitMW(h)
	}
	h = httpmw.ClientIP(opts.ClientIP)(h)

	return h
}

// shouldTrace filters out probe and telemetry scrape traffic.
func shouldTrace(p string) bool {
	if p == "/favicon.ico" || p == "/robots.txt" {
		return false
	}
	if p == "/metrics" || p == "/health" || strings.HasPrefix(p, "/health/") {
		return false
	}
	return true
}

// Server timeout defaults.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

// NewServer wraps a handler in an *http.Server with sane timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start runs the server in the background and returns stop(ctx) for
// graceful shutdown. stop is safe to call more than once.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
		opts.Logger = logger
	}

	srv := NewServer(addr, NewHandler(opts))

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
