package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterPerClientBuckets(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 2})
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	m := rl.GetMetrics()
	assert.EqualValues(t, 1, m.Rejected)
	assert.EqualValues(t, 2, m.ClientCount)
}

func TestCleanupDropsIdleClients(t *testing.T) {
	rl := NewLimiter(Config{ClientTTL: time.Millisecond})
	defer rl.Stop()

	rl.Allow("a")
	time.Sleep(5 * time.Millisecond)
	rl.cleanupStaleEntries()
	assert.EqualValues(t, 0, rl.GetMetrics().ClientCount)
}

func TestMiddlewareReturns429(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.001, Burst: 1})
	defer rl.Stop()

	h := rl.Middleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
