package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/cernio/cernio/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	principalContextKey contextKey = iota
)

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *models.Principal {
	principal, _ := ctx.Value(principalContextKey).(*models.Principal)
	return principal
}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// Middleware returns an HTTP middleware that requires a valid access token of this
// authority's kind. The principal is re-read from the store on every request, so
// deactivated accounts lose access as soon as their current access token is presented.
// deny writes the rejection response.
func (a *Authority) Middleware(deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := zerolog.Ctx(ctx)

			tokenString := extractBearerToken(r)
			if tokenString == "" {
				logger.Debug().Msg("Missing bearer token")
				deny(w, r)
				return
			}

			claims, err := a.tokens.VerifyAccess(tokenString, a.kind)
			if err != nil {
				logger.Debug().Err(err).Msg("Access token rejected")
				deny(w, r)
				return
			}

			principalID, err := uuid.Parse(claims.Subject)
			if err != nil {
				logger.Debug().Err(err).Msg("Access token subject is not a principal ID")
				deny(w, r)
				return
			}

			principal, err := a.ValidateByID(ctx, principalID)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to load principal for access token")
				deny(w, r)
				return
			}
			if principal == nil {
				logger.Debug().Str("principal_id", principalID.String()).Msg("Principal missing or inactive")
				deny(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return parts[1]
}
