// Package trace tags HTTP traffic with request IDs and logs each exchange,
// on both the serving side (mock backend) and the calling side (API client).
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "budgetwise/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID between client and server.
	HeaderRequestID = "X-Request-ID"
)

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	AverageResponseTime int64 // in microseconds
}

// Middleware handles request tracing and logging
type Middleware struct {
	logger  *applog.Logger
	metrics *Metrics
}

func NewMiddleware(logger *applog.Logger) *Middleware {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Middleware{logger: logger, metrics: &Metrics{}}
}

// Middleware returns HTTP middleware for request tracing. An incoming
// X-Request-ID is reused so client and server logs line up.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		ctx := WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, requestID)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.StoreInt64(&m.metrics.AverageResponseTime, duration.Microseconds())

		fields := applog.NewFields().
			WithRequestID(requestID).
			WithHTTPCall(r.Method, r.URL.Path, rw.statusCode, duration.Milliseconds())
		m.logger.Log(ctx, levelFor(rw.statusCode), "HTTP request completed", fields.ToSlice()...)
	})
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:       atomic.LoadInt64(&m.metrics.TotalRequests),
		AverageResponseTime: atomic.LoadInt64(&m.metrics.AverageResponseTime),
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Transport is the client-side counterpart: it stamps outgoing requests
// with a request ID and logs the round trip.
type Transport struct {
	Base   http.RoundTripper
	Logger *applog.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = applog.Discard()
	}

	requestID := GetRequestID(req.Context())
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	req = req.Clone(req.Context())
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := base.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		fields := applog.NewFields().
			WithRequestID(requestID).
			WithHTTPCall(req.Method, req.URL.Path, 0, duration.Milliseconds()).
			WithError(err)
		logger.WarnContext(req.Context(), "HTTP call failed", fields.ToSlice()...)
		return nil, err
	}

	fields := applog.NewFields().
		WithRequestID(requestID).
		WithHTTPCall(req.Method, req.URL.Path, resp.StatusCode, duration.Milliseconds())
	logger.Log(req.Context(), levelFor(resp.StatusCode), "HTTP call completed", fields.ToSlice()...)
	return resp, nil
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
