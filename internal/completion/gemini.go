package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient completes prompts with Google's Gemini models.
type GeminiClient struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	logger      *slog.Logger
}

// NewGeminiClient creates a client for model.
func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int, temperature float64, logger *slog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &GeminiClient{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens), //nolint:gosec // bounded by config validation
		temperature: float32(temperature),
		logger:      logger,
	}, nil
}

// Complete runs one GenerateContent call with systemContext as the
// system instruction.
func (g *GeminiClient) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetMaxOutputTokens(g.maxTokens)
	model.SetTemperature(g.temperature)
	if systemContext != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemContext)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
		break
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response: %w", ErrUpstreamRejected)
	}
	g.logger.Debug("gemini completion ok", "model", g.model, "chars", len([]rune(text)))
	return text, nil
}

// Close releases the underlying client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func classifyGeminiError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("gemini: %v: %w", err, ErrUpstreamRejected)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return statusError("gemini", gerr.Code, gerr.Message)
	}
	return fmt.Errorf("gemini: %v: %w", err, ErrUpstreamUnavailable)
}
