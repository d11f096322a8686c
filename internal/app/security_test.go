package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiter_FixedWindow(t *testing.T) {
	l := NewIPRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.Allow("a") {
		t.Fatal("request over the limit should be blocked")
	}
	// A different key has its own budget.
	if !l.Allow("b") {
		t.Fatal("unrelated key should not be throttled")
	}

	time.Sleep(60 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("window expiry should reset the budget")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewIPRateLimiter(2, time.Minute)
	handler := RateLimitMiddleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr, path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = remoteAddr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if do("1.2.3.4:1000", "/x") != http.StatusOK {
		t.Fatal("first request blocked")
	}
	if do("1.2.3.4:1000", "/x") != http.StatusOK {
		t.Fatal("second request blocked")
	}
	if do("1.2.3.4:1000", "/x") != http.StatusTooManyRequests {
		t.Fatal("third request should be rate limited")
	}
	// Another caller and another route both stay open.
	if do("5.6.7.8:1000", "/x") != http.StatusOK {
		t.Fatal("other caller throttled")
	}
	if do("1.2.3.4:1000", "/y") != http.StatusOK {
		t.Fatal("other route throttled")
	}
}
