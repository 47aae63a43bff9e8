package completion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenAICompatibleSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "سياق", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  أهلاً بك  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatible(srv.URL, "test-key", DeepSeekModel, 0, 0.7, time.Second, testLogger())
	out, err := c.Complete(context.Background(), "مرحبا", "سياق")
	require.NoError(t, err)
	assert.Equal(t, "أهلاً بك", out)
}

func TestOpenAICompatibleOmitsEmptySystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompatible(srv.URL, "k", "m", 10, 0, time.Second, testLogger())
	_, err := c.Complete(context.Background(), "hi", "")
	require.NoError(t, err)
}

func TestOpenAICompatibleErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"server error", http.StatusInternalServerError, `oops`, ErrUpstreamUnavailable},
		{"throttled", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrUpstreamUnavailable},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, ErrUpstreamRejected},
		{"unauthorized", http.StatusUnauthorized, `{}`, ErrUpstreamRejected},
		{"error body with 200", http.StatusOK, `{"error":{"message":"quota"}}`, ErrUpstreamRejected},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrUpstreamRejected},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, ErrUpstreamRejected},
		{"not json", http.StatusOK, `<html>`, ErrUpstreamRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAICompatible(srv.URL, "k", "m", 10, 0, time.Second, testLogger())
			_, err := c.Complete(context.Background(), "hi", "ctx")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpenAICompatibleNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewOpenAICompatible(url, "k", "m", 10, 0, time.Second, testLogger())
	_, err := c.Complete(context.Background(), "hi", "")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestAnthropicClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotNil(t, body["system"])
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
				"content":[{"type":"text","text":"أهلاً"}],"stop_reason":"end_turn",
				"usage":{"input_tokens":1,"output_tokens":1}}`))
		}))
		defer srv.Close()

		c := NewAnthropicClient("k", srv.URL, "m", 100, 0.5, testLogger())
		out, err := c.Complete(context.Background(), "hi", "system")
		require.NoError(t, err)
		assert.Equal(t, "أهلاً", out)
	})

	t.Run("status mapping", func(t *testing.T) {
		for status, want := range map[int]error{
			http.StatusBadRequest:          ErrUpstreamRejected,
			http.StatusInternalServerError: ErrUpstreamUnavailable,
		} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
			}))
			c := NewAnthropicClient("k", srv.URL, "m", 100, 0.5, testLogger())
			_, err := c.Complete(context.Background(), "hi", "")
			assert.ErrorIs(t, err, want, "status %d", status)
			srv.Close()
		}
	})
}

type fakeCompleter struct {
	calls atomic.Int32
	fn    func(call int) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	n := int(f.calls.Add(1))
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.fn(n)
}

func TestRetryingRetriesUnavailableOnly(t *testing.T) {
	t.Run("unavailable then success", func(t *testing.T) {
		f := &fakeCompleter{fn: func(call int) (string, error) {
			if call == 1 {
				return "", ErrUpstreamUnavailable
			}
			return "ok", nil
		}}
		r := NewRetrying(f, time.Second, 2, time.Millisecond, testLogger())
		out, err := r.Complete(context.Background(), "p", "s")
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("rejected is not retried", func(t *testing.T) {
		f := &fakeCompleter{fn: func(int) (string, error) { return "", ErrUpstreamRejected }}
		r := NewRetrying(f, time.Second, 3, time.Millisecond, testLogger())
		_, err := r.Complete(context.Background(), "p", "s")
		assert.ErrorIs(t, err, ErrUpstreamRejected)
		assert.Equal(t, int32(1), f.calls.Load())
	})

	t.Run("bounded attempts", func(t *testing.T) {
		f := &fakeCompleter{fn: func(int) (string, error) { return "", ErrUpstreamUnavailable }}
		r := NewRetrying(f, time.Second, 3, time.Millisecond, testLogger())
		_, err := r.Complete(context.Background(), "p", "s")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.Equal(t, int32(3), f.calls.Load())
	})
}

func TestRetryingPerAttemptTimeout(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", errors.Join(ctx.Err(), ErrUpstreamUnavailable)
	})
	r := NewRetrying(slow, 10*time.Millisecond, 2, time.Millisecond, testLogger())
	start := time.Now()
	_, err := r.Complete(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryingRecoversPanic(t *testing.T) {
	boom := completerFunc(func(context.Context, string, string) (string, error) {
		panic("upstream exploded")
	})
	r := NewRetrying(boom, time.Second, 1, 0, testLogger())
	_, err := r.Complete(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFailover(t *testing.T) {
	down := completerFunc(func(context.Context, string, string) (string, error) {
		return "", ErrUpstreamUnavailable
	})
	up := completerFunc(func(context.Context, string, string) (string, error) {
		return "secondary", nil
	})

	out, err := NewFailover(down, up, testLogger()).Complete(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "secondary", out)

	_, err = NewFailover(down, down, testLogger()).Complete(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	out, err = NewFailover(up, down, testLogger()).Complete(context.Background(), "p", "s")
	require.NoError(t, err)
	assert.Equal(t, "secondary", out)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Settings{Provider: "none"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, c)

	c, err = New(ctx, Settings{Provider: "deepseek"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, c, "missing key disables the provider")

	c, err = New(ctx, Settings{Provider: "DeepSeek", APIKey: "k"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompatible{}, c)

	c, err = New(ctx, Settings{Provider: "anthropic", APIKey: "k"}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	_, err = New(ctx, Settings{Provider: "carrier-pigeon", APIKey: "k"}, testLogger())
	assert.Error(t, err)
}

func TestDisabledAndPing(t *testing.T) {
	_, err := Disabled{}.Complete(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, Ping(context.Background(), Disabled{}), ErrUpstreamUnavailable)

	ok := completerFunc(func(context.Context, string, string) (string, error) { return "متصل", nil })
	assert.NoError(t, Ping(context.Background(), ok))

	blank := completerFunc(func(context.Context, string, string) (string, error) { return " ", nil })
	assert.ErrorIs(t, Ping(context.Background(), blank), ErrUpstreamRejected)
}

type completerFunc func(ctx context.Context, prompt, systemContext string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt, systemContext string) (string, error) {
	return f(ctx, prompt, systemContext)
}
