package httpmw

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// responseWriter wraps http.ResponseWriter to capture the status code and
// body size, and to run hooks against the header map immediately before the
// headers are serialized. Headers are finalized exactly once: hooks fire on
// the first WriteHeader (explicit or implied by Write) and never again.
// Handlers that return without writing anything leave the header map
// mutable, so the owning middleware calls flushHooks afterward and the
// server's implicit 200 still carries the hook headers.
type responseWriter struct {
	http.ResponseWriter

	status      int
	bytes       int64
	wroteHeader bool
	hooksRan    bool

	// run in order against the final header map before it is sent
	beforeHeader []func(h http.Header)
}

func wrapWriter(w http.ResponseWriter, hooks ...func(h http.Header)) *responseWriter {
	return &responseWriter{ResponseWriter: w, beforeHeader: hooks}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		rw.ResponseWriter.WriteHeader(code)
		return
	}
	rw.wroteHeader = true
	rw.status = code
	rw.flushHooks()
	rw.ResponseWriter.WriteHeader(code)
}

// flushHooks runs the pending header hooks at most once. Called from the
// first WriteHeader, or by the owning middleware when the handler returned
// without producing any output.
func (rw *responseWriter) flushHooks() {
	if rw.hooksRan {
		return
	}
	rw.hooksRan = true
	for _, hook := range rw.beforeHeader {
		hook(rw.Header())
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Status returns the written status code, or fallback if the handler never
// wrote one.
func (rw *responseWriter) Status(fallback int) int {
	if rw.status == 0 {
		return fallback
	}
	return rw.status
}

// support Flush if the underlying writer does.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// support Hijack (websockets, etc).
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}
