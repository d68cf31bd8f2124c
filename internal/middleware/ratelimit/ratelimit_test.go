package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func send(h http.Handler, method, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":12345"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send(handler, "GET", "/api/v1/tokens", "192.168.1.100").Code, "request %d", i+1)
	}
}

func TestRateLimiterBlocksExcessRequests(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2, CleanupMinutes: 1})
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		send(handler, "GET", "/api/v1/quote", "192.168.1.100")
	}
	rr := send(handler, "GET", "/api/v1/quote", "192.168.1.100")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	retry, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 60)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])

	// another client keeps its own quota
	assert.Equal(t, http.StatusOK, send(handler, "GET", "/api/v1/quote", "192.168.1.101").Code)
}

func TestRateLimiterNodeBucket(t *testing.T) {
	rl := New(Config{
		Enabled:            true,
		RequestsPerMin:     60,
		BurstSize:          10,
		NodeRequestsPerMin: 6,
		NodeBurstSize:      1,
		CleanupMinutes:     1,
	})
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())
	ip := "203.0.113.7"

	assert.Equal(t, http.StatusOK, send(handler, "GET", "/api/v1/balances/ECTO/abc", ip).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, "POST", "/api/v1/deploys/submit", ip).Code)

	// a denied node request does not consume general quota
	for i := 0; i < 9; i++ {
		assert.Equal(t, http.StatusOK, send(handler, "POST", "/api/v1/deploys/swap", ip).Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send(handler, "GET", "/api/v1/tokens", ip).Code)
}

func TestClassify(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, NodeRequestsPerMin: 10})
	defer rl.Stop()

	tests := []struct {
		method, path string
		node         bool
	}{
		{"GET", "/api/v1/balances/cspr/01ab", true},
		{"GET", "/api/v1/node", true},
		{"POST", "/api/v1/deploys/submit", true},
		{"GET", "/api/v1/deploys/abcd/status", true},
		{"POST", "/api/v1/deploys/approve", false},
		{"GET", "/api/v1/quote", false},
		{"GET", "/api/v1/history", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			classes := rl.Classify(httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.node, len(classes) == 2)
			assert.Equal(t, ClassGeneral, classes[0])
		})
	}

	plain := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	defer plain.Stop()
	assert.Equal(t, []Class{ClassGeneral}, plain.Classify(httptest.NewRequest("GET", "/api/v1/node", nil)))
}

func TestRateLimiterBypassesProbes(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	for _, path := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
		for i := 0; i < 10; i++ {
			assert.Equal(t, http.StatusOK, send(handler, "GET", path, "192.168.1.100").Code, "%s request %d", path, i+1)
		}
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	handler := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})(okHandler())
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, send(handler, "GET", "/api/v1/tokens", "192.168.1.100").Code)
	}
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 5, CleanupMinutes: 1})
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.limiter(ClassGeneral, "192.168.1.1")
	rl.limiter(ClassGeneral, "192.168.1.2")

	now = now.Add(30 * time.Second)
	rl.limiter(ClassGeneral, "192.168.1.2")

	now = now.Add(45 * time.Second)
	rl.prune()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.buckets, 1)
	_, ok := rl.buckets[bucketKey{class: ClassGeneral, ip: "192.168.1.2"}]
	assert.True(t, ok)
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 6000, BurstSize: 100, NodeRequestsPerMin: 6000, NodeBurstSize: 100})
	defer rl.Stop()
	handler := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := "10.0.0." + strconv.Itoa(i%5)
			send(handler, "GET", "/api/v1/balances/ECTO/x", ip)
		}(i)
	}
	wg.Wait()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.buckets, 10)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
