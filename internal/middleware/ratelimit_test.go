package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hit sends one GET through the limited handler from the given remote address.
func hit(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_AcceptsUpToBurst(t *testing.T) {
	handler := RateLimit(50, 5)(okHandler())

	for i := 0; i < 5; i++ {
		rec := hit(handler, "198.51.100.7:4000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_RejectsBeyondBurst(t *testing.T) {
	handler := RateLimit(1, 2)(okHandler())

	require.Equal(t, http.StatusOK, hit(handler, "198.51.100.7:4000").Code)
	require.Equal(t, http.StatusOK, hit(handler, "198.51.100.7:4000").Code)

	rec := hit(handler, "198.51.100.7:4000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimit_BucketsAreKeyedByHost(t *testing.T) {
	handler := RateLimit(1, 1)(okHandler())

	require.Equal(t, http.StatusOK, hit(handler, "10.1.0.1:1111").Code)

	// Same host, new source port: still the same bucket.
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.1.0.1:2222").Code)

	// A different host starts with a full bucket.
	assert.Equal(t, http.StatusOK, hit(handler, "10.1.0.2:1111").Code)
}

func TestClientHost(t *testing.T) {
	mk := func(remoteAddr, xff string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		return req
	}

	assert.Equal(t, "192.0.2.9", clientHost(mk("192.0.2.9:55001", "")))
	assert.Equal(t, "2001:db8::1", clientHost(mk("[2001:db8::1]:55001", "")))

	// RemoteAddr without a port is used as is.
	assert.Equal(t, "192.0.2.9", clientHost(mk("192.0.2.9", "")))

	// Forwarding headers are spoofable and never consulted.
	assert.Equal(t, "10.9.8.7", clientHost(mk("10.9.8.7:1234", "203.0.113.1, 198.51.100.2")))
}
