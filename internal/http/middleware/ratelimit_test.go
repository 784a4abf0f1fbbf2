package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(5 * time.Minute)
	rl.Allow("b")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Evict())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "b")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remote, realIP string) int {
		req := httptest.NewRequest(http.MethodPost, "/bookings", nil)
		req.RemoteAddr = remote
		if realIP != "" {
			req.Header.Set("X-Real-Ip", realIP)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5002", "41.250.1.1"))
}
