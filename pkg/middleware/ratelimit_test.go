package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoginRateLimiter_Allow(t *testing.T) {
	limiter := NewLoginRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 3}, nil)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("203.0.113.1") {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("allowed %d requests, want 3", allowed)
	}

	if !limiter.Allow("203.0.113.2") {
		t.Error("a different client must have its own bucket")
	}
}

func TestLoginRateLimiter_ConcurrentFirstRequestsShareOneBucket(t *testing.T) {
	const burst, callers = 5, 64
	limiter := NewLoginRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: burst}, nil)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Allow("203.0.113.9") {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != burst {
		t.Errorf("allowed %d concurrent requests, want %d", got, burst)
	}
	if got := limiter.Tracked(); got != 1 {
		t.Errorf("tracked %d clients, want 1", got)
	}
}

func TestLoginRateLimiter_Handler(t *testing.T) {
	limiter := NewLoginRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, nil)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/login", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusFound {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Errorf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}
}

func TestLoginRateLimiter_BoundedClients(t *testing.T) {
	limiter := NewLoginRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 1, MaxClients: 2}, nil)

	if !limiter.Allow("a") {
		t.Fatal("first attempt from a should pass")
	}
	if limiter.Allow("a") {
		t.Fatal("second attempt from a should be limited")
	}
	limiter.Allow("b")
	limiter.Allow("c")

	if got := limiter.Tracked(); got != 2 {
		t.Errorf("tracked %d clients, want 2", got)
	}
	if !limiter.Allow("a") {
		t.Error("an evicted client starts with a full bucket")
	}
}

func TestLoginRateLimiter_IdleClientsExpire(t *testing.T) {
	limiter := NewLoginRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 1, IdleTimeout: 20 * time.Millisecond}, nil)

	limiter.Allow("a")
	if limiter.Allow("a") {
		t.Fatal("second attempt should be limited")
	}
	time.Sleep(50 * time.Millisecond)

	if !limiter.Allow("a") {
		t.Error("an idle client should be forgotten")
	}
}
