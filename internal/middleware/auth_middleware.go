package middleware

import (
	"context"
	"net/http"
	"strings"

	"workphone-gateway/pkg/jwt"
	"workphone-gateway/pkg/response"
)

type contextKey string

const UserIDKey contextKey = "userID"

// TokenValidator accepts operator access tokens. Refresh tokens and the
// device tokens work phones present on the gateway path are rejected.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or ""
// when the header is absent or uses another scheme.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				response.ErrorCode(w, http.StatusUnauthorized, "missing_token", "Missing bearer token")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				response.ErrorCode(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired access token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(UserIDKey).(string)
	return userID
}
