package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

func testRetryConfig() domain.RetryConfig {
	return domain.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestGateway_ChatJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": `noise before {"name":"Ada"} noise after`}},
			},
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	result, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"name":"Ada"}` {
		t.Fatalf("unexpected extracted JSON: %s", result)
	}
}

func TestGateway_ChatJSON_RetriesThenSucceeds(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		if attempt < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	result, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
	if attempt < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempt)
	}
}

func TestGateway_ChatJSON_PermanentStatusNotRetried(t *testing.T) {
	attempt := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	_, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.IsRetriable(err) {
		t.Fatalf("expected non-retriable error, got %v", err)
	}
	if attempt != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent status, got %d", attempt)
	}
}

func TestGateway_ChatJSON_RetriableExhaustionBecomesRetriableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	_, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsRetriable(err) {
		t.Fatalf("expected retriable error after retry exhaustion, got %v", err)
	}
}

func TestGateway_ChatJSON_InvalidResponseIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "no json here"}}},
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	_, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.IsRetriable(err) {
		t.Fatalf("expected non-retriable error for malformed response, got %v", err)
	}
}

func TestGateway_Health_ReflectsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	}))
	defer server.Close()

	g := NewGateway(server.URL, "test-key", "test-model", time.Second, 1<<20, testRetryConfig())
	if _, err := g.ChatJSON(context.Background(), domain.SamplingParams{MaxTokens: 100}, "system", "user"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := g.Health()
	if stats["success_requests"].(int64) != 1 {
		t.Fatalf("expected 1 recorded success, got %v", stats["success_requests"])
	}
}

func TestGateway_WithLimiter_NilLimiterIsNoop(t *testing.T) {
	g := NewGateway("http://example.invalid", "key", "model", time.Second, 1<<20, testRetryConfig())
	got := g.WithLimiter(nil, "ai_gateway", 60)
	if got != g {
		t.Fatal("expected WithLimiter(nil, ...) to return the same gateway unchanged")
	}
}
