package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/cropdesk/cropdesk/pkg/requestid"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger returns a middleware that logs the start and the end of every request.
// The end line is logged at error level for 5xx, warn for 4xx, info otherwise.
func Logger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := zap.S().Named("http").Desugar()
			start := time.Now()
			// chi may rewrite the path while routing
			path := r.URL.Path
			requestID := requestid.FromRequest(r)
			ip := clientIP(r)

			logger.Info("Request started",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", ip),
				zap.String("user-agent", r.UserAgent()),
				zap.Int64("content_length", r.ContentLength),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zapcore.Field{
				zap.String("request_id", requestID),
				zap.Int("status", ww.Status()),
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.String("ip", ip),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			}

			msg := "Request completed"
			switch {
			case ww.Status() >= 500:
				logger.Error(msg, fields...)
			case ww.Status() >= 400:
				logger.Warn(msg, fields...)
			default:
				logger.Info(msg, fields...)
			}
		})
	}
}

// clientIP prefers the proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
