package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mintline/edition_layer/pkg/logger"
)

// TraceHeader carries the request's trace id in and out.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware adds trace ID to all requests and logs each one.
type TracingMiddleware struct {
	logger *logger.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(log *logger.Logger) *TracingMiddleware {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &TracingMiddleware{logger: log}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = uuid.NewString()
		}

		ctx := logger.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		m.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
