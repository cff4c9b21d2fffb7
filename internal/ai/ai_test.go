package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/kozaktomas/carecam/internal/config"
)

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"model":"mistral","message":{"role":"assistant","content":" Drink some water. "},"done":true,"prompt_eval_count":12,"eval_count":4}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL+"/", "")
	reply, err := Ask(context.Background(), p, "what should I do")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if reply != "Drink some water." {
		t.Errorf("expected trimmed reply, got %q", reply)
	}
	if got.Model != "mistral" || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != SystemPrompt {
		t.Errorf("expected system prompt first, got %+v", got.Messages)
	}
	if u := p.GetUsage(); u.Requests != 1 || u.InputTokens != 12 || u.OutputTokens != 4 {
		t.Errorf("unexpected usage %+v", u)
	}
	p.ResetUsage()
	if u := p.GetUsage(); u != (Usage{}) {
		t.Errorf("expected zero usage after reset, got %+v", u)
	}
}

func TestOllamaProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `model not found`, nil},
		{"bad json", http.StatusOK, `not json`, nil},
		{"empty content", http.StatusOK, `{"message":{"role":"assistant","content":"  "}}`, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewOllamaProvider(server.URL, "m").Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLlamaCppProvider_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"It is sunny."}}],"usage":{"prompt_tokens":5,"completion_tokens":3}}`))
	}))
	defer server.Close()

	p, err := NewLlamaCppProvider(server.URL, "")
	if err != nil {
		t.Fatalf("NewLlamaCppProvider failed: %v", err)
	}
	reply, err := Ask(context.Background(), p, "weather?")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "It is sunny." {
		t.Errorf("unexpected reply %q", reply)
	}
	if u := p.GetUsage(); u.InputTokens != 5 || u.OutputTokens != 3 {
		t.Errorf("unexpected usage %+v", u)
	}
}

func TestNewLlamaCppProvider_InvalidURL(t *testing.T) {
	for _, raw := range []string{"ftp://host", "http://", "://bad"} {
		if _, err := NewLlamaCppProvider(raw, ""); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestOpenAIProvider_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hello John."}}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 2, "total_tokens": 11}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	reply, err := Ask(context.Background(), p, "hello")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "Hello John." {
		t.Errorf("unexpected reply %q", reply)
	}
	if u := p.GetUsage(); u.InputTokens != 9 || u.OutputTokens != 2 {
		t.Errorf("unexpected usage %+v", u)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		token    string
		wantErr  bool
	}{
		{"default is ollama", "", "", false},
		{"llamacpp", "llamacpp", "", false},
		{"openai needs a token", "openai", "", true},
		{"openai", "openai", "sk-test", false},
		{"gemini needs a key", "gemini", "", true},
		{"unknown", "claude", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Chat.Provider = tt.provider
			cfg.OpenAI.Token = tt.token

			p, err := New(context.Background(), cfg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got provider %v", p.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() == "" {
				t.Error("expected provider name")
			}
		})
	}
}

type stubProvider struct {
	usageCounter
	err   error
	calls int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Chat(context.Context, []Message) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	g := NewGuarded(stub, GuardOptions{RatePerSecond: 1000, Burst: 100, MaxFailures: 2})
	ctx := context.Background()

	for range 2 {
		if _, err := g.Chat(ctx, nil); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected backend error, got %v", err)
		}
	}
	if g.State() != "open" {
		t.Errorf("expected open circuit, got %s", g.State())
	}

	_, err := g.Chat(ctx, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if stub.calls != 2 {
		t.Errorf("open circuit must not reach the backend, got %d calls", stub.calls)
	}
}

func TestGuarded_RateLimit(t *testing.T) {
	stub := &stubProvider{}
	g := NewGuarded(stub, GuardOptions{RatePerSecond: 0.001, Burst: 1})
	ctx := context.Background()

	if reply, err := g.Chat(ctx, nil); err != nil || reply != "ok" {
		t.Fatalf("expected first call to pass, got %q %v", reply, err)
	}
	if _, err := g.Chat(ctx, nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if g.Name() != "stub" {
		t.Errorf("expected wrapped provider name, got %s", g.Name())
	}
}
