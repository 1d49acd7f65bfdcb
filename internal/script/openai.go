// SPDX-License-Identifier: MIT

package script

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIChatter calls an OpenAI-compatible chat completion endpoint.
// Any server speaking the protocol works via BaseURL, including local
// llama.cpp or vLLM deployments.
type OpenAIChatter struct {
	client oai.Client
	model  string
}

// OpenAIConfig configures the chat client.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewOpenAIChatter builds the client.
func NewOpenAIChatter(cfg OpenAIConfig) *OpenAIChatter {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIChatter{
		client: oai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// HealthCheck verifies the endpoint answers by listing its models, the
// cheapest call every OpenAI-compatible server supports.
func (c *OpenAIChatter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	return nil
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *OpenAIChatter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
