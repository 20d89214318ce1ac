package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, set func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.RemoteAddr = remoteAddr
	if set != nil {
		set(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := hit(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:9999", nil).Code)
	}

	w := hit(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name  string
		cfg   RateLimitConfig
		first func(*http.Request)
		same  func(*http.Request)
		other func(*http.Request)
	}{
		{
			name:  "remote addr",
			first: func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1234" },
			same:  func(r *http.Request) { r.RemoteAddr = "10.0.0.1:5678" },
			other: func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1234" },
		},
		{
			name:  "forwarded for",
			first: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") },
			same: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.2:5555"
				r.Header.Set("X-Forwarded-For", "203.0.113.50")
			},
			other: func(r *http.Request) { r.Header.Set("X-Real-IP", "203.0.113.51") },
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{KeyFunc: func(r *http.Request) string {
				return r.Header.Get("api_key")
			}},
			first: func(r *http.Request) { r.Header.Set("api_key", "key-a") },
			same:  func(r *http.Request) { r.Header.Set("api_key", "key-a") },
			other: func(r *http.Request) { r.Header.Set("api_key", "key-b") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Max, cfg.Window = 1, time.Minute
			h := RateLimit(cfg)(okHandler())

			assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", tt.first).Code)
			assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:4444", tt.other).Code)
			assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.1:4444", tt.same).Code)
		})
	}
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	now := start
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	l.now = func() time.Time { return now }

	take := func() bool {
		_, _, ok := l.take("client")
		return ok
	}

	require.True(t, take())
	require.True(t, take())
	require.False(t, take())

	// Halfway through the next window half of the previous count still applies.
	now = start.Add(90 * time.Second)
	assert.True(t, take())
	assert.False(t, take())

	// Two windows later nothing carries over.
	now = start.Add(3 * time.Minute)
	assert.True(t, take())
	assert.True(t, take())

	now = start.Add(10 * time.Minute)
	l.evict()
	assert.Empty(t, l.windows)
}

func TestRateLimit_Skip(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, Skip: SkipProbes})(okHandler())

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", nil).Code)
}
