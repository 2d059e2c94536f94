package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey string

const (
	clientIPContextKey  contextKey = "client_ip"
	userAgentContextKey contextKey = "user_agent"
)

// maxUserAgentLength caps the user agent recorded against sessions.
const maxUserAgentLength = 512

// TrustedProxies lists the peers whose forwarding headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses IP addresses and CIDR ranges.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	trusted := make(TrustedProxies, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(value, "/") {
			prefix, err := netip.ParsePrefix(value)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
			}
			trusted = append(trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		addr = addr.Unmap()
		trusted = append(trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return trusted, nil
}

func (t TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP extracts the client IP address from the request.
// Forwarding headers are only read when the peer is a trusted proxy. X-Forwarded-For is
// walked from the right and the first hop that is not a trusted proxy is the client.
// X-Real-IP is used when X-Forwarded-For is absent. Otherwise the peer address is used.
func ExtractClientIP(r *http.Request, trusted TrustedProxies) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remote = host
	}

	if !trusted.contains(remote) {
		return remote
	}

	var hops []string
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for hop := range strings.SplitSeq(header, ",") {
			hops = append(hops, strings.TrimSpace(hop))
		}
	}
	if len(hops) > 0 {
		for i := len(hops) - 1; i >= 0; i-- {
			if _, err := netip.ParseAddr(hops[i]); err != nil {
				// malformed hop, fall back to the peer
				return remote
			}
			if !trusted.contains(hops[i]) || i == 0 {
				return hops[i]
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}

	return remote
}

// ClientIPFromContext extracts the client IP from the request context.
// This should be called from handlers wrapped by ClientIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// UserAgentFromContext extracts the client user agent from the request context.
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentContextKey).(string)
	return ua
}

// WithClient returns a context carrying the client IP and user agent.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	if len(userAgent) > maxUserAgentLength {
		userAgent = userAgent[:maxUserAgentLength]
	}
	ctx = context.WithValue(ctx, clientIPContextKey, ip)
	return context.WithValue(ctx, userAgentContextKey, userAgent)
}

// ClientIPMiddleware is a middleware that extracts and stores the client IP and user agent
// in the request context. This allows both to be recorded on sessions and in audit logs.
// With no trusted proxies the peer address is always used.
func ClientIPMiddleware(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithClient(r.Context(), ExtractClientIP(r, trusted), r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
