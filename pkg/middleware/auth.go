package middleware

import (
	"net/http"
	"strings"

	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/contextkeys"
	"github.com/seatsync/seatsync/pkg/httputil"
)

// AuthMiddleware authenticates bearer tokens and attaches the caller
// to the request context
type AuthMiddleware struct {
	provider auth.Provider
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(provider auth.Provider, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		provider: provider,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
			return
		}

		authCtx, err := m.provider.Authenticate(r.Context(), parts[1])
		if err != nil {
			httputil.WriteErrorCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts the authenticated caller from a request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	value := r.Context().Value(contextkeys.AuthKey)
	if value == nil {
		return nil
	}
	authCtx, ok := value.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
