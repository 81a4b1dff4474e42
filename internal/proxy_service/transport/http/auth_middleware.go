package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AdminSubjectContextKey = ContextKey("adminSubject")

// AdminAuthMiddleware requires an HS256 bearer token signed with secret.
// An empty secret disables the check.
func AdminAuthMiddleware(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(ctx, "Authorization header missing")
				respondWithError(w, http.StatusUnauthorized, "Authorization header required", "unauthorized")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(ctx, "Invalid Authorization header format")
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format", "unauthorized")
				return
			}

			token, err := parser.ParseWithClaims(parts[1], &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				if err == nil {
					err = errors.New("token invalid")
				}
				logger.WarnContext(ctx, "Token validation failed", "error", err)
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token", "unauthorized")
				return
			}

			subject, _ := token.Claims.GetSubject()
			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, AdminSubjectContextKey, subject)))
		})
	}
}
