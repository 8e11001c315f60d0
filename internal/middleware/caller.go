package middleware

import (
	"net/http"
	"strings"

	"github.com/dukerupert/hoversale/internal/domain"
)

// UserIDHeader carries the caller's user id. Identity is issued upstream;
// this service only reads it.
const UserIDHeader = "X-User-ID"

const maxUserIDLength = 128

// WithCaller attaches the declared caller to the request context.
// Requests without the header continue anonymously.
func WithCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(userID) > maxUserIDLength {
			respondBadRequest(w, r, "User ID is too long")
			return
		}

		ctx := domain.NewContextWithCaller(r.Context(), &domain.Caller{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCaller rejects requests that did not declare a user.
// Must be used after WithCaller.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if domain.UserIDFromContext(r.Context()) == "" {
			respondUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
