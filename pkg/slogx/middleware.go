package slogx

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ecobalance/dashboard/pkg/idx"
)

// QuietPrefixes lists path prefixes logged at debug instead of info. Static
// assets and the polling endpoint would otherwise drown the log.
var QuietPrefixes = []string{"/dashboard/assets/", "/dashboard/api/"}

// HTTPMiddleware logs requests and attaches a contextual logger into request context.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.New().String()
			}
			rw.Header().Set("X-Request-ID", reqID)

			logger := base.With(
				"req_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(rw, r.WithContext(WithContext(r.Context(), logger)))

			level := slog.LevelInfo
			for _, prefix := range QuietPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) && rw.status < http.StatusBadRequest {
					level = slog.LevelDebug
					break
				}
			}

			logger.Log(r.Context(), level, "http_request",
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
