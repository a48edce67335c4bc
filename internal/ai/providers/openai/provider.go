// Package openai implements the provider adapter for OpenAI-compatible
// endpoints. A custom base URL points it at any compatible gateway.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"studyroom/internal/ai"
	"studyroom/internal/domain/models"
)

// Provider implements the ai.Adapter interface for OpenAI-compatible
// endpoints.
type Provider struct {
	client *openai.Client
	model  string
}

// NewProvider creates a new OpenAI provider. baseURL is optional; when
// empty the official endpoint is used.
func NewProvider(apiKey, baseURL, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Generate produces a complete response via the chat completions API.
func (p *Provider) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for i, msg := range req.Messages {
		var role string
		switch msg.Role {
		case models.RoleUser:
			role = openai.ChatMessageRoleUser
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			return nil, ai.WrapPermanent(fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role))
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Text,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ai.WrapTransient(fmt.Errorf("openai returned no choices"))
	}

	choice := resp.Choices[0]
	return &ai.Response{
		Text:      choice.Message.Content,
		Truncated: choice.FinishReason == openai.FinishReasonLength,
		Model:     resp.Model,
	}, nil
}

// classifyError maps SDK errors onto the transient/permanent taxonomy.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ai.WrapStatusError(apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("openai API call failed: %w", err)
}
