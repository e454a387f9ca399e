package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockLimiter struct {
	allowFn func(ctx context.Context, subject string) (Decision, error)
}

func (m *mockLimiter) Allow(ctx context.Context, subject string) (Decision, error) {
	return m.allowFn(ctx, subject)
}

func TestNewRedisTokenBucket_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	_, err := NewRedisTokenBucket(nil, 10, time.Minute, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 0, time.Minute, "")
	require.Error(t, err)
	_, err = NewRedisTokenBucket(client, 10, 0, "")
	require.Error(t, err)

	l, err := NewRedisTokenBucket(client, 60, time.Minute, " ")
	require.NoError(t, err)
	require.Equal(t, defaultKeyPrefix, l.keyPrefix)
	require.InDelta(t, 0.001, l.refillPerMS, 1e-12)
	require.Equal(t, 2*time.Minute, l.ttl)
}

func TestRedisTokenBucket_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	l, err := NewRedisTokenBucket(client, 1, time.Second, "")
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "10.0.0.1")
	require.ErrorContains(t, err, "run token bucket script")
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(1), int64(4), int64(0)})
	require.NoError(t, err)
	require.Equal(t, Decision{Allowed: true, Remaining: 4}, d)

	d, err = parseDecision([]any{int64(0), "0", int64(1500)})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	_, err = parseDecision([]any{int64(1)})
	require.Error(t, err)
	_, err = parseDecision("nope")
	require.Error(t, err)
	_, err = parseDecision([]any{int64(1), []byte("x"), int64(0)})
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		decision     Decision
		err          error
		wantStatus   int
		wantRetry    string
		wantRejected int
	}{
		{name: "allowed", decision: Decision{Allowed: true, Remaining: 3}, wantStatus: 200},
		{name: "rejected", decision: Decision{RetryAfter: 2400 * time.Millisecond}, wantStatus: 429, wantRetry: "2", wantRejected: 1},
		{name: "rejected sub-second", decision: Decision{RetryAfter: 10 * time.Millisecond}, wantStatus: 429, wantRetry: "1", wantRejected: 1},
		{name: "limiter down", err: errors.New("redis down"), wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			limiter := &mockLimiter{
				allowFn: func(_ context.Context, s string) (Decision, error) {
					subject = s
					return tt.decision, tt.err
				},
			}
			rejected := 0

			r := gin.New()
			r.Use(Middleware(limiter, func(route string) {
				require.Equal(t, "/api/process", route)
				rejected++
			}))
			r.POST("/api/process", func(c *gin.Context) { c.Status(200) })

			req := httptest.NewRequest(http.MethodPost, "/api/process", nil)
			req.RemoteAddr = "10.1.2.3:5555"
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			require.Equal(t, "10.1.2.3:/api/process", subject)
			require.Equal(t, tt.wantRetry, w.Header().Get("Retry-After"))
			require.Equal(t, tt.wantRejected, rejected)
		})
	}
}
