package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient completes prompts with the Claude Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *slog.Logger
}

// NewAnthropicClient creates a client. baseURL is optional and exists so
// tests can point the SDK at an httptest server.
func NewAnthropicClient(apiKey, baseURL, model string, maxTokens int, temperature float64, logger *slog.Logger) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are owned by the Retrying wrapper.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := anthropic.NewClient(opts...)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicClient{
		client:      &c,
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends prompt as the user turn and systemContext as the system
// prompt.
func (a *AnthropicClient) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemContext != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemContext}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("anthropic: %v: %w", err, ErrUpstreamUnavailable)
	}

	var sb strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			sb.WriteString(resp.Content[i].Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic: empty response: %w", ErrUpstreamRejected)
	}
	a.logger.Debug("anthropic completion ok", "model", a.model, "chars", len([]rune(text)))
	return text, nil
}
