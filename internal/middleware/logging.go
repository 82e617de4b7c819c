package middleware

import (
	"net/http"
	"strings"
	"time"

	"platestation/internal/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware logs every control request and turns handler panics into 500s.
// Websocket and metrics traffic is passed through untouched.
func LoggingMiddleware(logger *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/view" || r.URL.Path == "/metrics" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if v := recover(); v != nil {
				logger.Error("Panic serving %s %s: %v", r.Method, r.URL.Path, v)
				http.Error(rec, "Internal Server Error", http.StatusInternalServerError)
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Error("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
			} else {
				logger.Info("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
