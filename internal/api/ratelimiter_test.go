package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticLimiter struct {
	allow bool
}

func (s *staticLimiter) Allow(string) bool {
	return s.allow
}

func TestRateLimitMiddlewareBlocksWhenLimiterDenies(t *testing.T) {
	middleware := rateLimitMiddleware(&staticLimiter{allow: false}, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler should not execute when rate limited")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestRateLimitMiddlewarePassesWhenLimiterAllows(t *testing.T) {
	var called bool
	middleware := rateLimitMiddleware(&staticLimiter{allow: true}, http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	middleware.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to execute when limiter allows")
	}
}

func TestNewTokenBucketLimiterUsesDefaults(t *testing.T) {
	limiter := newTokenBucketLimiter(0, 0)
	if limiter == nil {
		t.Fatalf("expected limiter instance")
	}
	if !limiter.Allow("192.0.2.1") {
		t.Fatalf("expected first request to be allowed")
	}
}

func TestTokenBucketLimiterKeysByClient(t *testing.T) {
	limiter := newTokenBucketLimiter(1, 1)
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("192.0.2.1") {
		t.Fatalf("expected first request from client A to pass")
	}
	if limiter.Allow("192.0.2.1") {
		t.Fatalf("expected second request from client A to be limited")
	}
	if !limiter.Allow("192.0.2.2") {
		t.Fatalf("expected client B to have its own bucket")
	}
}

func TestTokenBucketLimiterDropsIdleClients(t *testing.T) {
	limiter := newTokenBucketLimiter(1, 1)
	now := time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("192.0.2.1")
	limiter.Allow("192.0.2.2")
	if got := limiter.tracked(); got != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", got)
	}

	now = now.Add(clientIdleTTL)
	limiter.Allow("192.0.2.3")
	if got := limiter.tracked(); got != 1 {
		t.Fatalf("expected idle clients to be dropped, got %d tracked", got)
	}
}

func TestRateLimitMiddlewareSeparatesClients(t *testing.T) {
	handler := rateLimitMiddleware(newTokenBucketLimiter(1, 1), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	request := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/updateCheck", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request("198.51.100.7:5000"); code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := request("198.51.100.7:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same host on another port to share the bucket, got %d", code)
	}
	if code := request("198.51.100.8:5000"); code != http.StatusNoContent {
		t.Fatalf("expected another host to pass, got %d", code)
	}
}

func TestRateLimitMiddlewareWithoutLimiter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := rateLimitMiddleware(nil, next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough without limiter, got %d", rec.Code)
	}
}
