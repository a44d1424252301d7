package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = previous })
	return &buf
}

func TestWithMiddleware_PanicKeepsRequestContext(t *testing.T) {
	logs := captureLogs(t)
	panics := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	served := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/logs", "500"))

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set(RequestIDHeader, "req-panic")
	rec := httptest.NewRecorder()
	withMiddleware(panics).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-panic", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, served+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/logs", "500")))

	var recovered, completed map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		switch entry["message"] {
		case "Panic recovered in HTTP handler":
			recovered = entry
		case "HTTP request completed":
			completed = entry
		}
	}
	require.NotNil(t, recovered)
	require.NotNil(t, completed)
	assert.Equal(t, "req-panic", recovered["request_id"])
	assert.Equal(t, "req-panic", completed["request_id"])
	assert.Equal(t, float64(http.StatusInternalServerError), completed["status"])
}
