package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ectoplasm/dexclient/internal/middleware/realip"
)

func testHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	handler := Middleware(newLogger(&buf))(testHandler(http.StatusOK, "hello"))

	req := httptest.NewRequest("GET", "/api/v1/tokens", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "hello", rr.Body.String())

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/api/v1/tokens", entry["path"])
	assert.Equal(t, float64(http.StatusOK), entry["status"])
	assert.Equal(t, float64(5), entry["bytes"])
	assert.Equal(t, "192.168.1.100", entry["client_ip"])
	duration, ok := entry["duration"].(string)
	assert.True(t, ok)
	assert.NotEmpty(t, duration)
}

func TestMiddlewareLevels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/api/v1/deploys/submit", http.StatusBadGateway, "ERROR"},
		{"/api/v1/quote", http.StatusBadRequest, "WARN"},
		{"/healthz", http.StatusOK, "DEBUG"},
		{"/metrics", http.StatusOK, "DEBUG"},
		{"/api/v1/tokens", http.StatusOK, "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Middleware(newLogger(&buf))(testHandler(tt.status, ""))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", tt.path, nil))
			assert.Equal(t, tt.level, decodeEntry(t, &buf)["level"])
		})
	}
}

func TestMiddlewareRecordsRouteAndDeployHash(t *testing.T) {
	var buf bytes.Buffer
	hash := strings.Repeat("ab", 32)

	r := chi.NewRouter()
	r.Use(Middleware(newLogger(&buf)))
	r.Get("/api/v1/deploys/{hash}/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/deploys/"+hash+"/status", nil))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "/api/v1/deploys/{hash}/status", entry["route"])
	assert.Equal(t, hash, entry["deploy_hash"])
}

func TestMiddlewareIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.RequestID(Middleware(newLogger(&buf))(testHandler(http.StatusOK, "")))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, decodeEntry(t, &buf)["request_id"])

	buf.Reset()
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "test-request-id-123"))
	Middleware(newLogger(&buf))(testHandler(http.StatusOK, "")).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "test-request-id-123", decodeEntry(t, &buf)["request_id"])
}

func TestMiddlewareUsesRealIP(t *testing.T) {
	var buf bytes.Buffer
	mw := realip.Middleware(realip.Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8"},
	})
	handler := mw(Middleware(newLogger(&buf))(testHandler(http.StatusOK, "")))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.50", decodeEntry(t, &buf)["client_ip"])
}

func TestMiddlewareDefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := Middleware(newLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no explicit status"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, float64(http.StatusOK), decodeEntry(t, &buf)["status"])
}

func TestResponseWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusNotFound, rw.status)

	n, err := rw.Write([]byte("test"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	_, _ = rw.Write([]byte("more"))
	assert.Equal(t, 8, rw.bytes)
	assert.Equal(t, rr, rw.Unwrap())
}
