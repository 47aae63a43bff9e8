package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omalmisr/omal-responder/internal/retry"
)

// DefaultGraphURL is the Graph API root used when none is configured.
const DefaultGraphURL = "https://graph.facebook.com/v17.0"

// MaxMessageRunes is the Messenger limit for one text message.
const MaxMessageRunes = 2000

var errTransient = errors.New("transient graph api error")

// Kind selects the Graph API edge a sender posts to.
type Kind int

const (
	// KindMessage sends a Messenger message to a page-scoped user id.
	KindMessage Kind = iota
	// KindComment replies under a comment id.
	KindComment
)

// GraphSender posts replies through the Graph API.
type GraphSender struct {
	baseURL string
	token   string
	kind    Kind
	client  *http.Client
	retry   retry.Config
	logger  *slog.Logger
}

// NewGraphSender creates a sender against DefaultGraphURL.
func NewGraphSender(token string, kind Kind, logger *slog.Logger) *GraphSender {
	return NewGraphSenderWithURL(DefaultGraphURL, token, kind, 10*time.Second, logger)
}

// NewGraphSenderWithURL creates a sender against baseURL. Used by tests
// and for pinning a Graph API version.
func NewGraphSenderWithURL(baseURL, token string, kind Kind, timeout time.Duration, logger *slog.Logger) *GraphSender {
	return &GraphSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		kind:    kind,
		client:  &http.Client{Timeout: timeout},
		retry: retry.Config{
			MaxAttempts: 2,
			Delay:       500 * time.Millisecond,
			ShouldRetry: func(err error) bool { return errors.Is(err, errTransient) },
		},
		logger: logger,
	}
}

type messengerPayload struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	MessagingType string `json:"messaging_type"`
	Message       struct {
		Text string `json:"text"`
	} `json:"message"`
}

type commentPayload struct {
	Message string `json:"message"`
}

// Deliver sends text. Messenger replies longer than MaxMessageRunes are
// split on paragraph boundaries and sent in order.
func (g *GraphSender) Deliver(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("graph api: empty recipient: %w", ErrDeliveryFailed)
	}
	if g.kind == KindComment {
		return g.post(ctx, "/"+url.PathEscape(recipientID)+"/comments", commentPayload{Message: text})
	}
	for _, part := range SplitMessage(text, MaxMessageRunes) {
		var p messengerPayload
		p.Recipient.ID = recipientID
		p.MessagingType = "RESPONSE"
		p.Message.Text = part
		if err := g.post(ctx, "/me/messages", p); err != nil {
			return err
		}
	}
	return nil
}

func (g *GraphSender) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("graph api: marshaling payload: %w", err)
	}
	endpoint := g.baseURL + path + "?access_token=" + url.QueryEscape(g.token)

	err = retry.Do(ctx, g.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("graph api: creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("graph api: %v: %w", err, errTransient)
		}
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("graph api: HTTP %d: %s: %w", resp.StatusCode, raw, errTransient)
		default:
			return fmt.Errorf("graph api: HTTP %d: %s", resp.StatusCode, raw)
		}
	})
	if err != nil {
		return fmt.Errorf("%s: %v: %w", path, err, ErrDeliveryFailed)
	}
	g.logger.Debug("graph api: delivered", "edge", path)
	return nil
}

// SplitMessage cuts text into chunks of at most max runes, preferring
// paragraph and then line boundaries.
func SplitMessage(text string, max int) []string {
	if max <= 0 || len([]rune(text)) <= max {
		return []string{text}
	}
	var (
		out     []string
		current []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			out = append(out, s)
		}
		current = current[:0]
	}
	for _, para := range strings.SplitAfter(text, "\n") {
		r := []rune(para)
		if len(current)+len(r) > max {
			flush()
		}
		for len(r) > max {
			out = append(out, string(r[:max]))
			r = r[max:]
		}
		current = append(current, r...)
	}
	flush()
	return out
}
