package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and a request-scoped logger and
// logs one line when it completes.
func RequestLogger(base *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 64 {
				id = logger.NewRequestID()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := logger.WithRequestID(r.Context(), id)
			ctx = logger.NewContext(ctx, base)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				base.Error(ctx, "request completed", fields...)
				return
			}
			base.Info(ctx, "request completed", fields...)
		})
	}
}
