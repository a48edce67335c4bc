// Package anthropic implements the provider adapter for Anthropic
// (Claude) models on top of the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"studyroom/internal/ai"
	"studyroom/internal/domain/models"
)

// Provider implements the ai.Adapter interface for Anthropic models.
type Provider struct {
	client *anthropic.Client
	model  string
}

// NewProvider creates a new Anthropic provider with the given API key
// and model.
func NewProvider(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	return &Provider{
		client: &client,
		model:  model,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// Generate produces a complete response from Claude.
func (p *Provider) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, ai.WrapPermanent(fmt.Errorf("convert messages: %w", err))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	return &ai.Response{
		Text:      text.String(),
		Truncated: string(message.StopReason) == "max_tokens",
		Model:     string(message.Model),
	}, nil
}

// convertMessages converts adapter messages to Anthropic SDK format.
func convertMessages(messages []ai.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		block := anthropic.NewTextBlock(msg.Text)

		switch msg.Role {
		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(block))
		case models.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(block))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}

// classifyError maps SDK errors onto the transient/permanent taxonomy
// the failover controller depends on. Non-API errors (connection reset,
// DNS, deadline) stay unwrapped, which IsTransient treats as retryable.
func classifyError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return ai.WrapStatusError(apierr.StatusCode, err)
	}
	return fmt.Errorf("anthropic API call failed: %w", err)
}
