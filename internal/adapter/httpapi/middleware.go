package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/codewatchers/reviewd/internal/observability"
)

// WithMiddleware wraps the handler with panic recovery and request
// logging. Recovery runs innermost so panics are logged as requests too.
func WithMiddleware(next http.Handler, logger observability.Logger) http.Handler {
	return requestLogging(recovery(next, logger), logger)
}

func recovery(next http.Handler, logger observability.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if logger != nil {
					logger.LogError(r.Context(), "handler panicked", map[string]interface{}{
						"method": r.Method, "path": r.URL.Path, "panic": fmt.Sprintf("%v", rec),
					})
				}
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogging(next http.Handler, logger observability.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		if logger != nil {
			logger.LogInfo(r.Context(), "http request", map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
		}
	})
}
