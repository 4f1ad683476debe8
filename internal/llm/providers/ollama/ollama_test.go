package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/oraclebench/internal/llm"
)

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func fastRetry() llm.RetryPolicy {
	return llm.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestChatSendsSchemaAsFormatField(t *testing.T) {
	t.Parallel()

	p := NewProvider("local", "http://mock", 5*time.Second, fastRetry())
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/chat", r.URL.Path)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			require.Equal(t, false, reqBody["stream"])

			format, ok := reqBody["format"].(map[string]interface{})
			require.True(t, ok)
			require.Equal(t, "object", format["type"])

			opts, ok := reqBody["options"].(map[string]interface{})
			require.True(t, ok)
			require.Equal(t, float64(0), opts["temperature"])
			require.Equal(t, float64(4096), opts["num_predict"])
			require.Equal(t, float64(7), opts["seed"])

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(`{
					"message": {"role": "assistant", "content": "{}"},
					"done_reason": "stop",
					"prompt_eval_count": 12,
					"eval_count": 3
				}`)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:     "qwen2.5-coder:7b",
		Messages:  []llm.ChatMessage{{Role: llm.RoleUser, Content: "go"}},
		MaxTokens: 4096,
		Seed:      7,
		Format:    llm.ResponseFormat{Kind: llm.FormatSchema, Schema: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, "{}", resp.Message.Content)
	require.Equal(t, llm.FinishStop, resp.FinishReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCompleteMapsLengthStopAndJSONFormat(t *testing.T) {
	t.Parallel()

	p := NewProvider("local", "http://mock", 0, fastRetry())
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/generate", r.URL.Path)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			require.Equal(t, "json", reqBody["format"])

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(`{
					"response": "{\"files\":",
					"done_reason": "length",
					"prompt_eval_count": 4,
					"eval_count": 64
				}`)),
			}, nil
		}),
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model:  "qwen2.5-coder:7b",
		Prompt: "emit json",
		Format: llm.ResponseFormat{Kind: llm.FormatJSON},
	})
	require.NoError(t, err)
	require.Equal(t, llm.FinishLength, resp.FinishReason)
	require.Equal(t, `{"files":`, resp.Text)
}

func TestFormatRejectionMapsToFormatUnsupported(t *testing.T) {
	t.Parallel()

	p := NewProvider("local", "http://mock", 0, fastRetry())
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"error":"invalid option: format"}`)),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:  "m",
		Format: llm.ResponseFormat{Kind: llm.FormatSchema, Schema: json.RawMessage(`{"type":"object"}`)},
	})
	require.ErrorIs(t, err, llm.ErrFormatUnsupported)

	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Model:  "m",
		Format: llm.ResponseFormat{Kind: llm.FormatJSON},
	})
	require.ErrorIs(t, err, llm.ErrFormatUnsupported)
}

func TestPlain400StaysOpaque(t *testing.T) {
	t.Parallel()

	p := NewProvider("local", "http://mock", 0, fastRetry())
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`{"error":"model is required"}`)),
			}, nil
		}),
	}

	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Model:  "m",
		Format: llm.ResponseFormat{Kind: llm.FormatJSON},
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, llm.ErrFormatUnsupported)
}

func TestServerErrorBecomesStatusError(t *testing.T) {
	t.Parallel()

	p := NewProvider("local", "http://mock", 0, fastRetry())
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader("model not loaded")),
			}, nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	require.Error(t, err)

	var statusErr *llm.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Code)
	require.Equal(t, "model not loaded", statusErr.Body)
}
