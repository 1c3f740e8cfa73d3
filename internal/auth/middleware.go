package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie that carries the access token.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow values
// stored under these keys.
type contextKey string

const (
	userIDKey contextKey = "userID"
	claimsKey contextKey = "claims"
)

var errNoToken = errors.New("auth: no token presented")

// RequireAuth is a middleware that enforces authentication on protected
// routes.
//
// The token is read from the "token" cookie, or failing that from an
// "Authorization: Bearer" header for non-browser clients. It must verify,
// its ID must not have been revoked by a sign-out, and it must be newer
// than the user's last password change. On success the user
// ID and claims go into the request context; otherwise the chain stops
// with 401.
func RequireAuth(tokens *TokenService, revoker Revoker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, tokens, revoker)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID())
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the authenticated user's ID, or ("", false) on
// a route that is not behind RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ClaimsFromContext returns the validated token claims. Sign-out uses them
// to revoke exactly the token that made the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}

// WithUser returns a context carrying userID as if RequireAuth had run.
// Handler tests use it to skip token plumbing.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// TokenFromRequest returns the raw token from the cookie or the
// Authorization header.
func TokenFromRequest(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
	}
	return "", false
}

func authenticate(r *http.Request, tokens *TokenService, revoker Revoker) (*Claims, error) {
	raw, ok := TokenFromRequest(r)
	if !ok {
		return nil, errNoToken
	}

	claims, err := tokens.Validate(raw)
	if err != nil {
		return nil, err
	}

	if revoker != nil {
		revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrInvalidToken
		}

		cutoff, ok, err := revoker.SessionsRevokedAt(r.Context(), claims.UserID())
		if err != nil {
			return nil, err
		}
		if ok && claims.Issued().Before(cutoff) {
			return nil, fmt.Errorf("%w: issued before password change", ErrInvalidToken)
		}
	}
	return claims, nil
}
