package httpmw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/probstlabs/essentials/log"
	"github.com/probstlabs/essentials/xerrors"
)

// Error is a tagged application error: a short category label, a
// human-readable message, and an optional HTTP status. Handlers bail out by
// panicking with one; the ErrorHandler layer turns it into a JSON response.
type Error struct {
	Kind    string
	Message string
	Status  int
}

func (e *Error) Error() string { return e.Message }

// ErrorKind returns the category label used in the response body.
func (e *Error) ErrorKind() string { return e.Kind }

// HTTPStatus returns the status code to respond with, or 0 for the default.
func (e *Error) HTTPStatus() int { return e.Status }

// NewError builds a tagged Error. A zero status means "use the default"
// (500 for unhandled failures).
func NewError(kind, message string, status int) *Error {
	return &Error{Kind: kind, Message: message, Status: status}
}

// ErrorHandlerFunc produces the complete response for a matched error,
// bypassing default formatting entirely.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

// ErrorRoute pairs a predicate with a handler. Routes are evaluated in
// registration order; the first match wins.
type ErrorRoute struct {
	Match  func(err error) bool
	Handle ErrorHandlerFunc
}

// ErrorOptions configures ErrorHandler.
type ErrorOptions struct {
	Logger log.Logger

	// IncludeTraceback puts the stack trace in the response body.
	// Keep this off in production; failures are always logged with their
	// stack server-side regardless.
	IncludeTraceback bool

	// Routes are custom handlers consulted before default formatting.
	Routes []ErrorRoute

	// OnPanic is called once per recovered failure, before any response is
	// written. Used for metrics.
	OnPanic func()

	// RequestIDHeader is where the request ID is read back from the
	// response headers when the request context does not carry one.
	// RequestID stores the ID via the request context, which only flows
	// inward; this layer sits outside it, so the shared response header
	// map is what both sides can see. Empty means DefaultRequestIDHeader.
	RequestIDHeader string
}

// errorBody is the JSON envelope for unhandled failures.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Traceback string `json:"traceback,omitempty"`
}

// ErrorHandler is the outermost layer: it recovers panics from everything
// inside it and terminates the request with a formatted JSON response. It
// never re-raises, with one exception: http.ErrAbortHandler is passed
// through because it is the server's own mechanism for abandoning a
// connection, not a failure to report.
func ErrorHandler(opts ErrorOptions) Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	ridHeader := opts.RequestIDHeader
	if ridHeader == "" {
		ridHeader = DefaultRequestIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := wrapWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel identity check
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = NewError("Panic", fmt.Sprint(rec), 0)
				}
				// Captured here, inside the unwind, the stack still shows
				// the panic site. Creation-site stacks from xerrors win.
				err = xerrors.EnsureTrace(err)

				if opts.OnPanic != nil {
					opts.OnPanic()
				}

				for _, route := range opts.Routes {
					if route.Match != nil && route.Match(err) {
						route.Handle(ww, r, err)
						return
					}
				}

				ctx := r.Context()
				reqID := RequestIDFromContext(ctx)
				if reqID == "" {
					// RequestID runs inside this layer, so its context
					// never reaches us; it does set the response header
					// on the writer we share.
					reqID = ww.Header().Get(ridHeader)
				}
				if reqID == "" {
					reqID = "N/A"
				}
				kind := errorKind(err)

				// logged exactly once, traceback flag or not
				logger.Error(ctx, err, "request failed",
					"request_id", reqID,
					"error_kind", kind,
				)

				if ww.wroteHeader {
					// headers are gone; nothing more we can send
					return
				}

				body := errorBody{
					Error:     kind,
					Message:   err.Error(),
					RequestID: reqID,
				}
				if opts.IncludeTraceback {
					body.Traceback = fmt.Sprintf("%s: %s\n%s",
						kind, err.Error(), xerrors.Render(xerrors.Stack(err)))
				}

				h := ww.Header()
				h.Set("Content-Type", "application/json; charset=utf-8")
				h.Del("Content-Length")
				ww.WriteHeader(errorStatus(err))
				_ = json.NewEncoder(ww).Encode(body)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// errorKind returns the error's category label, or "InternalError" for
// untagged errors.
func errorKind(err error) string {
	var k interface{ ErrorKind() string }
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return "InternalError"
}

// errorStatus returns the status attached to the error, defaulting to 500.
func errorStatus(err error) int {
	var s interface{ HTTPStatus() int }
	if errors.As(err, &s) {
		if code := s.HTTPStatus(); code != 0 {
			return code
		}
	}
	return http.StatusInternalServerError
}
