package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/probstlabs/essentials/log"
)

// EssentialsOptions configures the full middleware set.
type EssentialsOptions struct {
	// Logger receives request and failure logs. Defaults to log.Nop().
	Logger log.Logger

	// LoggerName tags every log line; defaults to log.DefaultName.
	LoggerName string

	// CORSOrigins is the allowed-origin list; defaults to ["*"].
	CORSOrigins []string

	// IncludeTraceback forwards stack traces to clients on unhandled
	// failures. Off by default.
	IncludeTraceback bool

	// ErrorRoutes are custom error handlers, first match wins.
	ErrorRoutes []ErrorRoute

	// OnPanic is invoked once per recovered failure (metrics hook).
	OnPanic func()

	// SkipPaths excludes path prefixes from request logging.
	SkipPaths []string

	// RequestIDHeader and TimingHeader override the default header names.
	RequestIDHeader string
	TimingHeader    string

	// Security configures the security-header layer.
	Security SecurityOptions

	// CompressionLevel is the gzip/deflate level; defaults to 5.
	CompressionLevel int
}

// compressibleTypes are the content types worth compressing.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"application/javascript",
	"text/javascript",
	"application/json",
	"image/svg+xml",
}

// Essentials registers the full middleware set on a chi router in the
// supported order: error handling outermost, then CORS, security headers,
// request ID, timing, logging, and compression innermost.
func Essentials(r chi.Router, opts EssentialsOptions) {
	for _, mw := range essentialMiddlewares(opts) {
		r.Use(mw)
	}
}

// EssentialsChain wraps a plain http.Handler with the same middleware set in
// the same order, for hosts that do not use chi's Router.
func EssentialsChain(h http.Handler, opts EssentialsOptions) http.Handler {
	return Chain(h, essentialMiddlewares(opts)...)
}

func essentialMiddlewares(opts EssentialsOptions) []Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	name := opts.LoggerName
	if name == "" {
		name = log.DefaultName
	}
	logger = logger.With("logger", name)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = 5
	}

	return []Middleware{
		ErrorHandler(ErrorOptions{
			Logger:           logger,
			IncludeTraceback: opts.IncludeTraceback,
			Routes:           opts.ErrorRoutes,
			OnPanic:          opts.OnPanic,
			RequestIDHeader:  opts.RequestIDHeader,
		}),
		cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		SecurityHeaders(opts.Security),
		RequestID(opts.RequestIDHeader),
		Timing(opts.TimingHeader),
		Logging(logger, LoggingOptions{SkipPaths: opts.SkipPaths}),
		middleware.Compress(level, compressibleTypes...),
	}
}
