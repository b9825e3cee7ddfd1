package httpmw

import "net/http"

// Middleware is a handler decorator. Middlewares compose by nesting; the
// outermost runs first on the way in and last on the way out.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first middleware in the list is the
// outermost, and the last is innermost, wrapping h. Nil entries are skipped.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	wrapped := h

	// Apply in reverse: last mw in the slice wraps the handler first.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}

	return wrapped
}
