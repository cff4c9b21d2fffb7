// Package ai wraps the conversational models used when the assistant has no
// built-in answer.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/carecam/internal/config"
)

// SystemPrompt frames every fallback conversation.
const SystemPrompt = "You are a helpful assistant. Keep responses clear, accurate, and brief."

// maxReplyTokens caps every fallback answer.
const maxReplyTokens = 500

// ErrEmptyResponse is returned when a model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Message is one turn of a conversation. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Provider defines the interface for chat backends.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []Message) (string, error)
	GetUsage() Usage
	ResetUsage()
}

// Usage tracks token usage.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
}

// usageCounter is embedded by providers; chat requests arrive concurrently.
type usageCounter struct {
	mu    sync.Mutex
	usage Usage
}

func (u *usageCounter) track(input, output int) {
	u.mu.Lock()
	u.usage.Requests++
	u.usage.InputTokens += input
	u.usage.OutputTokens += output
	u.mu.Unlock()
}

func (u *usageCounter) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageCounter) ResetUsage() {
	u.mu.Lock()
	u.usage = Usage{}
	u.mu.Unlock()
}

// Ask sends a single question framed by SystemPrompt.
func Ask(ctx context.Context, p Provider, question string) (string, error) {
	return p.Chat(ctx, []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: question},
	})
}

// New builds the provider selected by CHAT_PROVIDER.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Chat.Provider {
	case "", "ollama":
		return NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	case "llamacpp":
		return NewLlamaCppProvider(cfg.LlamaCpp.URL, cfg.LlamaCpp.Model)
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN is required for the openai chat provider")
		}
		return NewOpenAIProvider(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is required for the gemini chat provider")
		}
		return NewGeminiProvider(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Chat.Provider)
	}
}
