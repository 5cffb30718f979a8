package auth

import (
	"encoding/json"
	"net/http"
)

// HTTPMiddleware returns middleware enforcing the same API key policy as
// APIKeyInterceptor on the REST API and the WebSocket upgrade.
//
// The key is read from the named request header. Rejected requests receive
// 401 with a JSON error body.
func HTTPMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	p := newPolicy(mode, header, key)
	return func(next http.Handler) http.Handler {
		if p == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := p.check(r.Header.Values(p.header)); err != nil {
				unauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
