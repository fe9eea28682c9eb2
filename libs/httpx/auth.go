package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireBearer guards a handler with a shared secret sent as
// "Authorization: Bearer <secret>". An empty secret rejects every request.
func RequireBearer(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "shared secret not configured", http.StatusInternalServerError)
				return
			}
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
