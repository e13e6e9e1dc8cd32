// Package llm selects the official domain for a company from web-search
// candidates via a strict-JSON chat completion.
package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface needed to call a chat model. It mirrors the
// CreateChatCompletion method so any OpenAI-compatible backend can be
// adapted and tests can substitute a fake.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds the production chat client. org and baseURL may be
// empty; httpClient should be the shared high-throughput client.
func NewOpenAIClient(apiKey, org, baseURL string, httpClient *http.Client) Client {
	cfg := openai.DefaultConfig(apiKey)
	if org != "" {
		cfg.OrgID = org
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}
