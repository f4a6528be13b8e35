package middleware

import (
	"net/http"
	"strings"

	"github.com/faeln1/go-mockup-api/internal/platform/auth"
)

// TokenValidator resolves a bearer token to the caller's identity.
type TokenValidator func(token string, r *http.Request) (auth.Identity, bool)

// BearerAuth reads the token from the Authorization header, the apikey
// header, or the token query parameter (browsers cannot set headers on a
// WebSocket handshake).
func BearerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing token")
				return
			}

			id, ok := validator(token, r)
			if !ok {
				writeAuthError(w, http.StatusForbidden, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if key := strings.TrimSpace(r.Header.Get("apikey")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
