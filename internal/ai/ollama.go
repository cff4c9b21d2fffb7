package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "mistral"
)

type OllamaProvider struct {
	usageCounter
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaProvider) Name() string {
	return p.model
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  struct {
		NumPredict int `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message         wireMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// Chat calls /api/chat without streaming.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	req := ollamaRequest{Model: p.model, Messages: toWire(messages)}
	req.Options.NumPredict = maxReplyTokens

	var resp ollamaResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	p.track(resp.PromptEvalCount, resp.EvalCount)

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
