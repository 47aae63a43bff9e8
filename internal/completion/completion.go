// Package completion talks to external text-completion services. Every
// client reports failures as one of two sentinel errors so callers can
// tell transient outages from rejected requests.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var (
	// ErrUpstreamUnavailable covers network failures, timeouts, throttling
	// and 5xx responses. It is the only error worth retrying.
	ErrUpstreamUnavailable = errors.New("completion upstream unavailable")
	// ErrUpstreamRejected covers 4xx responses, error bodies and empty
	// completions.
	ErrUpstreamRejected = errors.New("completion upstream rejected request")
)

// Completer produces a completion for prompt given a system context.
type Completer interface {
	Complete(ctx context.Context, prompt, systemContext string) (string, error)
}

// Provider names.
const (
	ProviderDeepSeek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// Providers lists every accepted provider name.
var Providers = []string{ProviderDeepSeek, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderNone}

// Defaults per provider.
const (
	DeepSeekURL          = "https://api.deepseek.com/v1/chat/completions"
	DeepSeekModel        = "deepseek-chat"
	OpenAIURL            = "https://api.openai.com/v1/chat/completions"
	OpenAIModel          = "gpt-4o-mini"
	AnthropicModel       = "claude-haiku-4-5-20251001"
	GeminiModel          = "gemini-2.5-flash"
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.7
	DefaultTimeout       = 20 * time.Second
	DefaultMaxAttempts   = 2
	DefaultRetryDelay    = 500 * time.Millisecond
	pingPrompt           = "مرحبا"
	pingSystemContext    = "هذا اختبار اتصال. رد بكلمة 'متصل' فقط."
	providerErrorMaxBody = 200
)

// Settings configures one provider client.
type Settings struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New builds the client for s.Provider. Provider "none" (or a missing API
// key) yields a client that always reports the upstream as unavailable,
// which sends the engine straight to local recovery.
func New(ctx context.Context, s Settings, logger *slog.Logger) (Completer, error) {
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	if provider != ProviderNone && provider != "" && s.APIKey == "" {
		logger.Warn("completion provider has no api key; using local recovery only", "provider", provider)
		return Disabled{}, nil
	}
	switch provider {
	case ProviderDeepSeek:
		return NewOpenAICompatible(firstNonEmpty(s.BaseURL, DeepSeekURL), s.APIKey, firstNonEmpty(s.Model, DeepSeekModel), s.MaxTokens, s.Temperature, s.Timeout, logger), nil
	case ProviderOpenAI:
		return NewOpenAICompatible(firstNonEmpty(s.BaseURL, OpenAIURL), s.APIKey, firstNonEmpty(s.Model, OpenAIModel), s.MaxTokens, s.Temperature, s.Timeout, logger), nil
	case ProviderAnthropic:
		return NewAnthropicClient(s.APIKey, s.BaseURL, firstNonEmpty(s.Model, AnthropicModel), s.MaxTokens, s.Temperature, logger), nil
	case ProviderGemini:
		g, err := NewGeminiClient(ctx, s.APIKey, firstNonEmpty(s.Model, GeminiModel), s.MaxTokens, s.Temperature, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", s.Provider)
	}
}

// Disabled is a Completer with no upstream.
type Disabled struct{}

// Complete always fails with ErrUpstreamUnavailable.
func (Disabled) Complete(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("no completion provider configured: %w", ErrUpstreamUnavailable)
}

// Ping sends a tiny connection-check prompt and reports whether a
// non-empty completion came back.
func Ping(ctx context.Context, c Completer) error {
	out, err := c.Complete(ctx, pingPrompt, pingSystemContext)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" {
		return fmt.Errorf("empty ping reply: %w", ErrUpstreamRejected)
	}
	return nil
}

// statusError maps an HTTP status to a sentinel error.
func statusError(provider string, status int, detail string) error {
	if status == 429 || status >= 500 {
		return fmt.Errorf("%s: status %d: %s: %w", provider, status, detail, ErrUpstreamUnavailable)
	}
	return fmt.Errorf("%s: status %d: %s: %w", provider, status, detail, ErrUpstreamRejected)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncateBody(b []byte) string {
	s := string(b)
	r := []rune(s)
	if len(r) > providerErrorMaxBody {
		return string(r[:providerErrorMaxBody]) + "..."
	}
	return s
}
