package gatewayhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}
type loggerContextKey struct{}

// RequestIDKey is the context key carrying the per-request correlation id.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key carrying the request-scoped logger.
var LoggerKey = loggerContextKey{}

// RequestIDMiddleware extracts or generates a request ID, enriches the
// logger with it, and echoes the id back on the response for client-side
// correlation.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enriched)
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the request-scoped logger, falling back to
// slog.Default() if RequestIDMiddleware did not run.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
