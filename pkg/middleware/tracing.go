package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request id, and logs
// the span tree once the response is written. It must run inside RequestID.
func Trace(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), logger.RequestID(r.Context()))
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			span.SetAttr("status", sw.Status())
			span.End()
			span.Log(l)
		})
	}
}
