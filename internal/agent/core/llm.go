package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/handywriterz/handywriterz/config"
)

// OpenAIProvider implements LLMProvider against any OpenAI-compatible chat
// completions endpoint.
type OpenAIProvider struct {
	cfg    config.LLMProvider
	model  config.LLMModel
	client *HTTPClient
}

// NewLLMProvider creates the provider backing a pipeline role. The role is a
// routing key (planning, drafting, swarm); unknown roles fall back to the
// configured fallback model.
func NewLLMProvider(cfg config.LLMConfig, role string) (LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	modelKey := routeModel(cfg.Routing, role)
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai", "openai-compatible", "":
			model, ok := provider.Models[modelKey]
			if !ok {
				continue
			}
			timeout := provider.Timeout
			if timeout == 0 {
				timeout = 120 * time.Second
			}
			return &OpenAIProvider{
				cfg:    provider,
				model:  model,
				client: NewHTTPClient(timeout, 2, 500*time.Millisecond),
			}, nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no provider offers model %q", modelKey)
}

func routeModel(r config.LLMRoutingConfig, role string) string {
	var key string
	switch role {
	case "planning":
		key = r.Planning
	case "drafting":
		key = r.Drafting
	case "swarm":
		key = r.Swarm
	}
	if key == "" {
		key = r.Fallback
	}
	return key
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate produces text for a prompt, bounded by maxTokens (0 means use the
// model's configured ceiling).
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("LLM API key not configured")
	}

	apiModel := p.model.APIName
	if apiModel == "" {
		apiModel = p.model.Name
	}
	if maxTokens <= 0 || (p.model.MaxTokens > 0 && maxTokens > p.model.MaxTokens) {
		maxTokens = p.model.MaxTokens
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	req := chatRequest{
		Model:       apiModel,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: p.model.Temperature,
		MaxTokens:   maxTokens,
	}
	var out chatResponse
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := p.client.DoJSON(ctx, "POST", baseURL+"/chat/completions", headers, req, &out); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices")
	}
	return out.Choices[0].Message.Content, nil
}
