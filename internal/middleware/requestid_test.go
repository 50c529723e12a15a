package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveWithRequestID runs a request through the RequestID middleware and
// returns the ID the inner handler saw plus the recorded response.
func serveWithRequestID(t *testing.T, headerValue string) (string, *httptest.ResponseRecorder) {
	t.Helper()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if headerValue != "" {
		req.Header.Set("X-Request-ID", headerValue)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec
}

func TestRequestID_AssignsAndEchoes(t *testing.T) {
	seen, rec := serveWithRequestID(t, "")

	require.NotEmpty(t, seen, "handler should see a generated ID")
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"), "response echoes the ID the handler saw")

	again, _ := serveWithRequestID(t, "")
	assert.NotEqual(t, seen, again, "each request gets its own ID")
}

func TestRequestID_KeepsWellFormedCallerID(t *testing.T) {
	for _, id := range []string{
		"req-42",
		"3f2c9a60-1111-4222-8333-abcdef012345",
		"trace_OK",
		strings.Repeat("x", 128),
	} {
		seen, rec := serveWithRequestID(t, id)
		assert.Equal(t, id, seen, "caller ID %q should survive", id)
		assert.Equal(t, id, rec.Header().Get("X-Request-ID"))
	}
}

func TestRequestID_ReplacesUnsafeCallerID(t *testing.T) {
	unsafe := []struct {
		name  string
		value string
	}{
		{"newline log forging", "id\nlevel=ERROR forged"},
		{"carriage return", "id\rforged"},
		{"whitespace", "two words"},
		{"html", "<b>id</b>"},
		{"colon separator", "svc:req:1"},
		{"over length cap", strings.Repeat("x", 129)},
	}

	for _, tt := range unsafe {
		t.Run(tt.name, func(t *testing.T) {
			seen, rec := serveWithRequestID(t, tt.value)
			require.NotEmpty(t, seen)
			assert.NotEqual(t, tt.value, seen, "unsafe ID must be replaced")
			assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRequestIDFromContext_NoMiddleware(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
