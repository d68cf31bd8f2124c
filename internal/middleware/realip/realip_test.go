package realip

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddlewareResolvesClient(t *testing.T) {
	private := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

	tests := []struct {
		name    string
		cfg     Config
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "proxy trust disabled",
			cfg:     Config{TrustProxy: false, TrustedProxies: private},
			remote:  "192.168.1.100:12345",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    "192.168.1.100",
		},
		{
			name:    "trusted proxy",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.5"},
			want:    "203.0.113.50",
		},
		{
			name:    "untrusted peer",
			cfg:     Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remote:  "192.168.1.100:12345",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.50"},
			want:    "192.168.1.100",
		},
		{
			name:    "x-real-ip fallback",
			cfg:     Config{TrustProxy: true, TrustedProxies: []string{"10.0.0.0/8"}},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Real-IP": "203.0.113.50"},
			want:    "203.0.113.50",
		},
		{
			name:    "spoofed leftmost hop is skipped",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.50, 172.16.0.1"},
			want:    "203.0.113.50",
		},
		{
			name:    "all hops trusted",
			cfg:     Config{TrustProxy: true, TrustedProxies: private},
			remote:  "10.0.0.1:12345",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.1, 172.16.0.1, 10.0.0.2"},
			want:    "192.168.1.1",
		},
		{
			name:   "no forwarding headers",
			cfg:    Config{TrustProxy: true, TrustedProxies: private},
			remote: "10.0.0.1:12345",
			want:   "10.0.0.1",
		},
		{
			name:    "single address entry",
			cfg:     Config{TrustProxy: true, TrustedProxies: []string{"127.0.0.1"}},
			remote:  "127.0.0.1:9000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Middleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetClientIP(r)
			}))

			req := httptest.NewRequest("GET", "/api/v1/tokens", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetClientIPWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	assert.Equal(t, "192.168.1.100", GetClientIP(req))
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		addr     string
		expected string
	}{
		{"192.168.1.100:12345", "192.168.1.100"},
		{"192.168.1.100", "192.168.1.100"},
		{"[::1]:8080", "::1"},
		{"::1", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractIP(tt.addr))
		})
	}
}

func TestResolverTrusted(t *testing.T) {
	res := NewResolver(Config{
		TrustProxy:     true,
		TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "not-a-network", "fd00::/8"},
	})
	assert.Len(t, res.prefixes, 3)

	tests := []struct {
		ip       string
		expected bool
	}{
		{"10.255.255.255", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"::ffff:10.0.0.1", true},
		{"fd12::1", true},
		{"8.8.8.8", false},
		{"invalid", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.expected, res.trusted(tt.ip))
		})
	}
}
