package mockproxy

import "net/http"

// corsMiddleware wraps a handler pipeline so that every response — success
// or error, from either plane — carries Access-Control-Allow-Origin: *,
// and every OPTIONS preflight is answered directly with the full
// permissive header set, without reaching the wrapped handler.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "*")
			h.Set("Access-Control-Allow-Headers", "*")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
