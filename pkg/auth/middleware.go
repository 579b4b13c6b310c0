// Package auth authenticates API callers and attaches request metadata.
package auth

import (
	"net/http"
	"strings"

	"github.com/Mindburn-Labs/assetguard/pkg/api"
)

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{"/health", "/readiness"}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware creates JWT auth middleware. A nil validator rejects every
// non-public request.
func NewMiddleware(validator *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenStr == "" {
				api.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			if validator == nil {
				api.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			principal, err := validator.Validate(tokenStr)
			if err != nil {
				api.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole wraps h so only principals holding role reach it.
func RequireRole(role Role, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := GetPrincipal(r.Context())
		if err != nil {
			api.WriteUnauthorized(w, "")
			return
		}
		if p.Role != role {
			api.WriteForbidden(w, "requires role "+string(role))
			return
		}
		h(w, r)
	}
}
