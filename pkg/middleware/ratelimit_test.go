package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatsync/seatsync/pkg/auth"
	"github.com/seatsync/seatsync/pkg/contextkeys"
)

// setupRateLimitTest creates a miniredis instance and returns the
// client and a cleanup function
func setupRateLimitTest(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}
	return client, mr, cleanup
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	client, _, cleanup := setupRateLimitTest(t)
	defer cleanup()
	ctx := context.Background()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
	}, "test")

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "caller")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit should be denied")

	// A different key is unaffected
	allowed, err = limiter.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_WindowReset(t *testing.T) {
	client, mr, cleanup := setupRateLimitTest(t)
	defer cleanup()
	ctx := context.Background()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "test")

	allowed, err := limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Advance past the window; the counter expires
	mr.FastForward(2 * time.Minute)

	allowed, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	client, mr, cleanup := setupRateLimitTest(t)
	defer cleanup()

	limiter := NewDistributedRateLimiter(client, DefaultRateLimitConfig(), "test")

	// Redis going away must never block a request
	mr.Close()
	allowed, err := limiter.Allow(context.Background(), "caller")
	assert.True(t, allowed)
	assert.Error(t, err)
}

func TestDistributedRateLimiter_Remaining(t *testing.T) {
	client, _, cleanup := setupRateLimitTest(t)
	defer cleanup()
	ctx := context.Background()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
	}, "test")

	remaining, err := limiter.Remaining(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, 5, remaining, "untouched key has the full budget")

	_, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, "caller")
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("denies over-limit anonymous callers", func(t *testing.T) {
		client, _, cleanup := setupRateLimitTest(t)
		defer cleanup()

		m := NewRateLimitMiddleware(client)
		m.anonLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
			RequestsPerWindow: 2,
			WindowDuration:    time.Minute,
		}, "ratelimit:anon")
		handler := m.Handler(okHandler)

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("authenticated callers use the per-user budget", func(t *testing.T) {
		client, _, cleanup := setupRateLimitTest(t)
		defer cleanup()

		m := NewRateLimitMiddleware(client)
		m.anonLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
			RequestsPerWindow: 1,
			WindowDuration:    time.Minute,
		}, "ratelimit:anon")
		handler := m.Handler(okHandler)

		authCtx := &auth.AuthContext{User: &auth.User{ID: 7}}
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			req = req.WithContext(contextkeys.WithAuth(req.Context(), authCtx))
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, "authenticated caller is not bound by the anon limit")
		}
	})

	t.Run("separate IPs get separate budgets", func(t *testing.T) {
		client, _, cleanup := setupRateLimitTest(t)
		defer cleanup()

		m := NewRateLimitMiddleware(client)
		m.anonLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
			RequestsPerWindow: 1,
			WindowDuration:    time.Minute,
		}, "ratelimit:anon")
		handler := m.Handler(okHandler)

		for _, addr := range []string{"10.0.0.1:5555", "10.0.0.2:5555"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = addr
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.168.1.1:1234",
			want:       "192.168.1.1",
		},
		{
			name:       "x-forwarded-for wins",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.7"},
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
