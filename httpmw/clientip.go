package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// WithClientIP attaches a resolved client address to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext gets the resolved client address, or "" if none.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ClientIPOptions configures client IP resolution.
type ClientIPOptions struct {
	// TrustedHops is the number of trusted reverse proxies between the
	// client and this server. 0 = no proxies (X-Forwarded-For ignored),
	// 1 = a single load balancer (rightmost XFF entry), and so on.
	TrustedHops int
}

// ClientIP resolves the real client address and stores it in the context for
// the logging and rate-limiting layers. X-Forwarded-For is honored only when
// the direct peer is a private address and TrustedHops is positive; in every
// other case the forwarding headers are stripped so nothing downstream can
// trust them by accident.
func ClientIP(opts ClientIPOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientAddr(r *http.Request, trustedHops int) string {
	// should never happen outside of tests with hand-built requests
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "0.0.0.0"
	}

	if !ip.IsPrivate() && !ip.IsLoopback() || trustedHops <= 0 {
		dropForwardingHeaders(r)
		return host
	}

	// Select the Nth-from-end XFF entry for N trusted proxies. Fewer
	// entries than expected means misconfiguration or manipulation:
	// fail closed and keep the peer address.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		idx := len(parts) - trustedHops
		if idx < 0 {
			dropForwardingHeaders(r)
			return host
		}
		if candidate := strings.TrimSpace(parts[idx]); net.ParseIP(candidate) != nil {
			return candidate
		}
	}

	return host
}

func dropForwardingHeaders(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}
