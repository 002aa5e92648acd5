package api

import (
	"net/http"
	"time"

	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger seeds the request context with method, path and request id
// and logs one line per completed request.
func requestLogger(logg *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			if reqID := middleware.GetReqID(ctx); reqID != "" {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logg.Info(logg.WithFields(ctx, map[string]any{
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			}), "request completed")
		})
	}
}
