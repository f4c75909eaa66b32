package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	if got := clientIP(req); got != "10.0.0.1" {
		t.Errorf("clientIP = %q, want %q", got, "10.0.0.1")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/test", nil)
	req2.RemoteAddr = "not-a-host-port"
	if got := clientIP(req2); got != "not-a-host-port" {
		t.Errorf("clientIP fallback = %q, want %q", got, "not-a-host-port")
	}
}

func TestWriteRateLimitResponse(t *testing.T) {
	w := httptest.NewRecorder()
	writeRateLimitResponse(w)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" {
		t.Error("Retry-After header should be set")
	}
}

func TestLimiterStoreAllowsUpToBurst(t *testing.T) {
	store := newLimiterStore(1, 3)

	for i := 0; i < 3; i++ {
		if !store.allow("user-a") {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}
	if store.allow("user-a") {
		t.Error("request exceeding burst should be denied")
	}
}

func TestLimiterStoreKeysAreIndependent(t *testing.T) {
	store := newLimiterStore(1, 1)

	if !store.allow("user-a") {
		t.Fatal("first request for user-a should be allowed")
	}
	if !store.allow("user-b") {
		t.Error("user-b should have its own independent bucket")
	}
}

func TestRateLimitMessagesPassesThroughWithoutUser(t *testing.T) {
	s := &Server{rateLimiters: newRateLimiters()}
	defer s.rateLimiters.Close()

	called := false
	handler := s.rateLimitMessages(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called for an unauthenticated request")
	}
}

func TestRateLimitAuthBlocksAfterBurst(t *testing.T) {
	s := &Server{rateLimiters: newRateLimiters()}
	defer s.rateLimiters.Close()

	handler := s.rateLimitAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var lastCode int
	for i := 0; i < authRateBurst+1; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		lastCode = w.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("after exceeding burst, status = %d, want %d", lastCode, http.StatusTooManyRequests)
	}
}
