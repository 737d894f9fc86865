package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/contextkeys"
	"github.com/mindfulmate/mindful/pkg/httputil"
	"github.com/mindfulmate/mindful/pkg/observability"
)

// TokenVerifier validates a session token
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Auth authenticates requests with a session token
type Auth struct {
	verifier   TokenVerifier
	cookieName string
}

// NewAuth creates the authentication middleware
func NewAuth(verifier TokenVerifier, cookieName string) *Auth {
	if cookieName == "" {
		cookieName = "access_token"
	}
	return &Auth{verifier: verifier, cookieName: cookieName}
}

// Handler rejects requests without a valid token with 401
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.token(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing session token")
			return
		}

		claims, err := a.verifier.Verify(token)
		if err != nil {
			msg := "invalid session token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "session expired"
			}
			observability.FromContext(r.Context()).WithError(err).Debug("token rejected")
			httputil.WriteUnauthorized(w, msg)
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) token(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetClaims returns the authenticated caller, or nil
func GetClaims(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(contextkeys.AuthKey).(*auth.Claims)
	return claims
}

// RequireRole rejects callers without role with 403
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !claims.HasRole(role) {
				httputil.WriteForbidden(w, "insufficient role permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
