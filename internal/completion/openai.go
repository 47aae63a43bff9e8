package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatible calls a chat-completions endpoint in the OpenAI wire
// format. DeepSeek serves the same format.
type OpenAICompatible struct {
	endpointURL string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// chatResponse doubles as the error envelope: some gateways answer 200
// with an "error" object instead of choices.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAICompatible creates a client for endpointURL.
func NewOpenAICompatible(endpointURL, apiKey, model string, maxTokens int, temperature float64, timeout time.Duration, logger *slog.Logger) *OpenAICompatible {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAICompatible{
		endpointURL: endpointURL,
		apiKey:      apiKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Complete sends the system context and prompt as a two-message chat.
func (o *OpenAICompatible) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemContext != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemContext})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat completion: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: calling API: %v: %w", err, ErrUpstreamUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat completion: reading body: %v: %w", err, ErrUpstreamUnavailable)
	}

	var parsed chatResponse
	jsonErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		detail := truncateBody(raw)
		if jsonErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
		}
		return "", statusError("chat completion", resp.StatusCode, detail)
	}
	if jsonErr != nil {
		return "", fmt.Errorf("chat completion: decoding response: %v: %w", jsonErr, ErrUpstreamRejected)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion: error body: %s: %w", parsed.Error.Message, ErrUpstreamRejected)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices: %w", ErrUpstreamRejected)
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion: empty content: %w", ErrUpstreamRejected)
	}

	o.logger.Debug("chat completion ok", "model", o.model, "chars", len([]rune(text)))
	return text, nil
}
