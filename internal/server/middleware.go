package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/wellaios/calendar-mcp/internal/instrumentation"
)

// BearerAuthMiddleware guards the MCP endpoint with the static bearer
// token the agent runtime is configured with.
//
// Path rules mirror the authorization model of the flow:
//   - /auth/google/callback is open: it is driven by Google's redirect,
//     which cannot carry our bearer token. Its own protection is the
//     signed state parameter.
//   - /auth is open at this layer: the handler authorizes it against the
//     single-use correlation token in the query string.
//   - /healthz and /readyz are open for probes.
//   - everything else requires "Authorization: Bearer <token>".
func BearerAuthMiddleware(bearerToken string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresBearer(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authorization := r.Header.Get("Authorization")
		if authorization == "" {
			http.Error(w, "Missing Authorization Header", http.StatusUnauthorized)
			return
		}

		bearer, ok := strings.CutPrefix(authorization, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(bearer), []byte(bearerToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requiresBearer(path string) bool {
	switch {
	case strings.HasPrefix(path, "/auth"):
		return false
	case path == "/healthz", path == "/readyz":
		return false
	}
	return true
}

// statusRecorder captures the response status for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the wrapper.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// MetricsMiddleware records request counts and latency per path.
func MetricsMiddleware(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}
