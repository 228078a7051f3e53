// Package middleware holds the auth gate that fronts every protected route.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-messages/internal/httpx"
	"github.com/diewo77/go-messages/internal/token"
)

type identityContextKey struct{}

// WithIdentity stores the resolved identity in ctx.
func WithIdentity(ctx context.Context, ident *token.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the identity placed by RequireAuth.
func IdentityFromContext(ctx context.Context) (*token.Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(*token.Identity)
	return ident, ok
}

// BearerToken pulls the raw token out of the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	value := r.Header.Get("Authorization")
	if !strings.HasPrefix(value, prefix) || len(value) == len(prefix) {
		return "", false
	}
	return value[len(prefix):], true
}

// RequireAuth validates the bearer token before the wrapped handler runs and
// attaches the resolved identity to the request context. Failure
// short-circuits: the wrapped handler never executes.
func RequireAuth(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				httpx.JSONError(w, http.StatusUnauthorized, "authorization token not found", nil)
				return
			}
			ident, err := tokens.Validate(r.Context(), raw)
			if err != nil {
				WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

// WriteAuthError maps token validation failures onto the API contract:
// missing, expired and revoked tokens are 401, malformed ones 400, and an
// unreachable revocation store 503.
func WriteAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrMissingToken):
		httpx.JSONError(w, http.StatusUnauthorized, "authorization token not found", nil)
	case errors.Is(err, token.ErrExpiredToken):
		httpx.JSONError(w, http.StatusUnauthorized, "token has expired, please login again", nil)
	case errors.Is(err, token.ErrRevokedToken):
		httpx.JSONError(w, http.StatusUnauthorized, "token has been invalidated, please login again", nil)
	case errors.Is(err, token.ErrBlocklistUnavailable):
		httpx.JSONError(w, http.StatusServiceUnavailable, "authentication backend unavailable", nil)
	default:
		httpx.JSONError(w, http.StatusBadRequest, "token is invalid, please login again", nil)
	}
}
