package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/junwei-liu/docgate/internal/i18n"
)

// APIKeyMiddleware enforces the shared API key when one is configured.
// The key is accepted from the X-API-Key header, a Bearer token, or the
// api_key form field. An empty configured key disables the check.
func APIKeyMiddleware(apiKey, language string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("X-API-Key")
			if got == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					got = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if got == "" {
				got = r.FormValue("api_key")
			}

			if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status":  "error",
					"error":   i18n.ErrUnauthorized,
					"details": i18n.Message(i18n.ErrUnauthorized, language),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
