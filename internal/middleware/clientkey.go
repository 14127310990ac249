package middleware

import (
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ipguard/internal/ratelimit"
)

// ClientKeyFunc derives the limiter key for a request.
type ClientKeyFunc func(ctx huma.Context) ratelimit.ClientKey

// ClientKeyResolver returns a ClientKeyFunc keyed on the client IP.
// Proxy headers are only honoured when trustProxy is set; otherwise any
// client could pick its own key.
func ClientKeyResolver(trustProxy bool) ClientKeyFunc {
	return func(ctx huma.Context) ratelimit.ClientKey {
		return ratelimit.ClientKey(ClientIP(ctx, trustProxy))
	}
}

// ClientIP extracts the client IP from the request.
func ClientIP(ctx huma.Context, trustProxy bool) string {
	if trustProxy {
		// First hop is the original client
		if xff := ctx.Header("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				xff = xff[:idx]
			}

			if ip := strings.TrimSpace(xff); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(ctx.Header("X-Real-IP")); xri != "" {
			return xri
		}
	}

	addr := ctx.RemoteAddr()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
