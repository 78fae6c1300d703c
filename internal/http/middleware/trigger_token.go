package middleware

import (
	"crypto/subtle"
	"net/http"
)

// RequireTriggerToken guards the reminder trigger with a shared token carried
// in the X-Trigger-Token header. An empty configured token disables the check
// for local development.
func RequireTriggerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := r.Header.Get("X-Trigger-Token")
				if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					http.Error(w, "invalid trigger token", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
