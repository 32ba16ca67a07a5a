package httpclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClient_SuccessFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(WithMaxRetries(3))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if resp != nil {
		resp.Body.Close()
	}

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (400 must not be retried)", calls.Load())
	}
}

func TestClient_ConservativeRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithMaxRetries(2))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestClient_SmartRetryHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// Retry-After 0 falls through to exponential backoff off baseDelay.
	client := New(WithMaxRetries(2), WithBaseDelay(time.Millisecond))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, backoff did not respect base delay", elapsed)
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(WithMaxRetries(1), WithBaseDelay(time.Millisecond))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("error = %v, want RetryableError", err)
	}
	if retryErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", retryErr.StatusCode)
	}
	if !strings.Contains(retryErr.Error(), "max HTTP retries") {
		t.Errorf("message = %q, want mention of exhausted retries", retryErr.Error())
	}
}

func TestClient_RequestBodyRecreatedOnRetry(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		lastBody.Store(string(buf[:n]))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithMaxRetries(2))
	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"command":"go"}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if got := lastBody.Load(); got != `{"command":"go"}` {
		t.Errorf("retried body = %q, want original payload", got)
	}
}
