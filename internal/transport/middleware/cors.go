package middleware

import (
	"net/http"
	"strings"
)

// CORS applies the cross-origin headers the marketplace frontends need to
// call this API from the browser. allowedOrigins is the comma-separated
// server config value; empty or "*" allows any origin, otherwise only the
// listed origins are echoed back. Idempotency-Key and Retry-After are
// exposed so clients can read them off responses.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	wildcard := true
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		wildcard = false
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Idempotency-Key, X-Verification-Status, X-Trace-ID")
			w.Header().Set("Access-Control-Expose-Headers", "Idempotency-Key, Retry-After, X-Trace-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
