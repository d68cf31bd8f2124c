// Package ratelimit provides per-IP token bucket rate limiting. Requests that
// fan out to the Casper node (balance probes, submissions, status polls) draw
// from a second, tighter bucket as well as the general one.
package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ectoplasm/dexclient/internal/middleware/realip"
)

// Config holds the configuration for rate limiting
type Config struct {
	Enabled bool
	// RequestsPerMin and BurstSize bound every API request per IP
	RequestsPerMin int
	BurstSize      int
	// NodeRequestsPerMin and NodeBurstSize additionally bound node-bound
	// requests per IP; zero disables the node bucket
	NodeRequestsPerMin int
	NodeBurstSize      int
	// CleanupMinutes is how long an idle IP keeps its buckets
	CleanupMinutes int
}

// Class names a bucket family.
type Class string

const (
	ClassGeneral Class = "general"
	ClassNode    Class = "node"
)

type bucketKey struct {
	class Class
	ip    string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-IP buckets.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	limits  map[Class]rate.Limit
	bursts  map[Class]int
	idle    time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// New creates a RateLimiter and starts its cleanup goroutine.
func New(cfg Config) *RateLimiter {
	idle := time.Duration(cfg.CleanupMinutes) * time.Minute
	if idle <= 0 {
		idle = 10 * time.Minute
	}

	rl := &RateLimiter{
		buckets: make(map[bucketKey]*bucket),
		limits:  map[Class]rate.Limit{ClassGeneral: perMinute(cfg.RequestsPerMin)},
		bursts:  map[Class]int{ClassGeneral: cfg.BurstSize},
		idle:    idle,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cfg.NodeRequestsPerMin > 0 {
		burst := cfg.NodeBurstSize
		if burst <= 0 {
			burst = 1
		}
		rl.limits[ClassNode] = perMinute(cfg.NodeRequestsPerMin)
		rl.bursts[ClassNode] = burst
	}

	go rl.cleanupLoop()
	return rl
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopped.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.prune()
		case <-rl.stopCh:
			return
		}
	}
}

// prune drops buckets idle for longer than the cleanup interval.
func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.idle)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) limiter(class Class, ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := bucketKey{class: class, ip: ip}
	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = rl.now()
		return b.limiter
	}
	b := &bucket{
		limiter:  rate.NewLimiter(rl.limits[class], rl.bursts[class]),
		lastSeen: rl.now(),
	}
	rl.buckets[key] = b
	return b.limiter
}

// allow takes one token from every bucket the request belongs to. When any
// bucket is empty, tokens already taken are returned and the wait until the
// next token is reported.
func (rl *RateLimiter) allow(ip string, classes []Class) (bool, time.Duration) {
	now := rl.now()
	taken := make([]*rate.Reservation, 0, len(classes))
	for _, class := range classes {
		res := rl.limiter(class, ip).ReserveN(now, 1)
		if !res.OK() {
			cancelAll(taken, now)
			return false, time.Minute
		}
		if delay := res.DelayFrom(now); delay > 0 {
			res.CancelAt(now)
			cancelAll(taken, now)
			return false, delay
		}
		taken = append(taken, res)
	}
	return true, 0
}

func cancelAll(rs []*rate.Reservation, now time.Time) {
	for _, r := range rs {
		r.CancelAt(now)
	}
}

var exemptPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Classify returns the buckets a request draws from.
func (rl *RateLimiter) Classify(r *http.Request) []Class {
	if _, ok := rl.limits[ClassNode]; ok && nodeBound(r) {
		return []Class{ClassGeneral, ClassNode}
	}
	return []Class{ClassGeneral}
}

// nodeBound reports whether serving r calls the Casper node.
func nodeBound(r *http.Request) bool {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case strings.HasPrefix(path, "/balances/"):
		return true
	case path == "/node":
		return true
	case path == "/deploys/submit":
		return true
	case strings.HasPrefix(path, "/deploys/") && strings.HasSuffix(path, "/status"):
		return true
	}
	return false
}

// Middleware returns an HTTP middleware that rate limits requests per IP
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := rl.allow(realip.GetClientIP(r), rl.Classify(r))
			if !ok {
				writeLimited(w, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.Header().Set("X-Rate-Limit-Exceeded", "true")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "RATE_LIMIT_EXCEEDED",
			"message": "Too many requests. Please try again later.",
		},
	})
}

// Middleware returns a rate limiting middleware with the given configuration.
// The limiter's cleanup goroutine runs for the lifetime of the process.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return New(cfg).Middleware()
}
