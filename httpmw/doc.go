// Package httpmw provides composable HTTP middleware: request-ID tagging,
// request timing, security headers, structured request logging, and
// centralized error handling, plus Essentials, which registers the full set
// (with CORS and compression) in the supported order:
//
//	error handling -> CORS -> security headers -> request ID -> timing ->
//	logging -> compression -> application handler
//
// Each middleware is an independent func(http.Handler) http.Handler holding
// only immutable configuration, so instances are safe to share across
// concurrent requests. The only per-request coupling between layers is the
// request context (correlation ID, client IP) and the response header map.
package httpmw
