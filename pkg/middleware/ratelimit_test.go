package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindfulmate/mindful/pkg/auth"
	"github.com/mindfulmate/mindful/pkg/contextkeys"
	"github.com/mindfulmate/mindful/pkg/observability"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 20; i++ {
		if ok, _ := limiter.Allow(ctx, "user:1"); ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)
	assert.Equal(t, 0, limiter.Remaining("user:1"))

	ok, _ := limiter.Allow(ctx, "user:2")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(500 * time.Millisecond)
	allowed = 0
	for i := 0; i < 10; i++ {
		if ok, _ := limiter.Allow(ctx, "user:1"); ok {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(context.Background(), "a")
	now = now.Add(3 * time.Second)
	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.buckets)
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 10 * time.Millisecond, BurstSize: 1})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	done := limiter.StartCleanup(ctx)

	require.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.buckets) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimitMiddleware(limiter, metrics)(ok)

	asUser := func(id int64) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/chat-count", nil)
		return req.WithContext(contextkeys.WithAuth(req.Context(), &auth.Claims{UserID: id}))
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, asUser(1))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asUser(2))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitedTotal))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.TTL(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute)
	ok, err = limiter.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, "user:1"))
	remaining, err = limiter.Remaining(ctx, "user:1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	limiter := NewDistributedRateLimiter(client, nil, "")
	mr.Close()

	ok, err := limiter.Allow(context.Background(), "user:1")
	assert.Error(t, err)
	assert.True(t, ok)

	h := RateLimitMiddleware(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
