package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is used to store values in request context
type ContextKey string

const (
	ClaimsContextKey ContextKey = "claims"
)

// AuthMiddleware is a middleware that validates JWT tokens
func (s *Service) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		// Expect format: "Bearer <token>"
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			http.Error(w, "Authorization header must be in format 'Bearer <token>'", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(tokenParts[1])
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
