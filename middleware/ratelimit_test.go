package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoginRateLimit(t *testing.T) {
	mw, err := LoginRateLimit(NewMemoryLimiterStore(), "2-M", zap.NewNop())
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":41234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, post("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, post("10.0.0.1").Code)

	w := post("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])

	// rotating a forwarding header does not buy a new budget
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:41234"
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	req.Header.Set("X-Real-IP", "203.0.113.78")
	spoofed := httptest.NewRecorder()
	handler.ServeHTTP(spoofed, req)
	assert.Equal(t, http.StatusTooManyRequests, spoofed.Code)

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, post("10.0.0.2").Code)
}

func TestLoginRateLimit_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, err := NewRedisLimiterStore(client)
	require.NoError(t, err)

	// two instances sharing one redis share the budget
	first, err := LoginRateLimit(store, "2-M", zap.NewNop())
	require.NoError(t, err)
	second, err := LoginRateLimit(store, "2-M", zap.NewNop())
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	post := func(mw func(http.Handler) http.Handler) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:41234"
		w := httptest.NewRecorder()
		mw(ok).ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post(first))
	assert.Equal(t, http.StatusOK, post(second))
	assert.Equal(t, http.StatusTooManyRequests, post(first))

	// store failures are reported, not ignored
	mr.Close()
	assert.Equal(t, http.StatusInternalServerError, post(second))
}

func TestLoginRateLimit_InvalidRate(t *testing.T) {
	_, err := LoginRateLimit(NewMemoryLimiterStore(), "often", zap.NewNop())
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr without port", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote addr ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr bare", nil, "192.0.2.9", "192.0.2.9"},
		{"forwarded for ignored", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:80", "10.0.0.1"},
		{"real ip ignored", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:80", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
