package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareReusesIncomingID(t *testing.T) {
	m := NewMiddleware(nil)
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req_abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req_abc", seen)
	assert.Equal(t, "req_abc", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.EqualValues(t, 1, m.GetMetrics().TotalRequests)
}

func TestMiddlewareGeneratesID(t *testing.T) {
	h := NewMiddleware(nil).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, strings.HasPrefix(rec.Header().Get(HeaderRequestID), "req_"))
}

func TestTransportPropagatesContextID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderRequestID)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{}}
	ctx := WithRequestID(context.Background(), "req_fixed")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "req_fixed", got)
	assert.Empty(t, req.Header.Get(HeaderRequestID), "caller's request is not mutated")
}

func TestTransportReportsFailure(t *testing.T) {
	client := &http.Client{Transport: &Transport{}}
	_, err := client.Get("http://127.0.0.1:1/")
	assert.Error(t, err)
}
