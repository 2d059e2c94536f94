// Package ratelimit limits how often a client may call the credential endpoints.
package ratelimit

import (
	"context"
	"net/http"

	httpmiddleware "github.com/cernio/cernio/internal/http"
	"github.com/cernio/cernio/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware rejects requests once a client exceeds the limiter's budget for the
// requested path. Clients are identified by the IP stored by ClientIPMiddleware.
// Limiter errors let the request through. deny writes the rejection response.
func Middleware(limiter Limiter, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := httpmiddleware.ClientIPFromContext(ctx) + "|" + r.URL.Path

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				telemetry.GetMetrics().RateLimitedTotal.Add(ctx, 1,
					metric.WithAttributes(attribute.String("path", r.URL.Path)))
				zerolog.Ctx(ctx).Warn().Str("key", key).Msg("Rate limit exceeded")
				deny(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
