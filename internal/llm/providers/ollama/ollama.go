package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/animus-coder/oraclebench/internal/llm"
)

// Provider implements a minimal Ollama client. Ollama accepts a JSON schema
// (or the literal "json") in the request "format" field, so both structured
// formats map onto it directly.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
	retry   llm.RetryPolicy
}

// NewProvider constructs an Ollama provider.
func NewProvider(name, baseURL string, timeout time.Duration, retry llm.RetryPolicy) *Provider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		retry:   retry,
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat executes a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: toMessages(req.Messages),
		Stream:   false,
		Format:   toFormat(req.Format),
		Options:  toOptions(req.Temperature, req.MaxTokens, req.Seed),
	}

	var resp chatResponse
	if err := p.post(ctx, "/api/chat", body, &resp); err != nil {
		return llm.ChatResponse{}, classifyFormatError(err, req.Format)
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.Role(resp.Message.Role),
			Content: resp.Message.Content,
		},
		FinishReason: finishReason(resp.DoneReason),
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Complete executes a plain generation call.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if req.Model == "" {
		return llm.CompletionResponse{}, fmt.Errorf("model is required")
	}

	body := generateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Format:  toFormat(req.Format),
		Options: toOptions(req.Temperature, req.MaxTokens, req.Seed),
	}

	var resp generateResponse
	if err := p.post(ctx, "/api/generate", body, &resp); err != nil {
		return llm.CompletionResponse{}, classifyFormatError(err, req.Format)
	}

	return llm.CompletionResponse{
		Text:         resp.Response,
		FinishReason: finishReason(resp.DoneReason),
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

func (p *Provider) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return p.retry.Do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		res, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode >= 300 {
			b, _ := io.ReadAll(res.Body)
			return &llm.StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(b))}
		}

		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// toFormat maps the response-shape constraint onto Ollama's format field:
// a raw schema object for json_schema, the literal "json" for json_object.
func toFormat(f llm.ResponseFormat) json.RawMessage {
	switch f.Kind {
	case llm.FormatSchema:
		return f.Schema
	case llm.FormatJSON:
		return json.RawMessage(`"json"`)
	default:
		return nil
	}
}

func toOptions(temperature float64, maxTokens, seed int) map[string]any {
	opts := map[string]any{
		"temperature": temperature,
	}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	if seed != 0 {
		opts["seed"] = seed
	}
	return opts
}

// classifyFormatError maps a 400 rejecting the "format" field onto
// llm.ErrFormatUnsupported so callers can drop the constraint. Ollama builds
// that predate structured output reject schema objects this way.
func classifyFormatError(err error, format llm.ResponseFormat) error {
	if err == nil || format.Kind == llm.FormatNone {
		return err
	}
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	if statusErr.Code != http.StatusBadRequest {
		return err
	}
	if strings.Contains(strings.ToLower(statusErr.Body), "format") {
		return fmt.Errorf("%w: %s", llm.ErrFormatUnsupported, statusErr.Body)
	}
	return err
}

func finishReason(doneReason string) string {
	if doneReason == "length" {
		return llm.FinishLength
	}
	return llm.FinishStop
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []message       `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options map[string]any  `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message         message `json:"message"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type generateResponse struct {
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func toMessages(msgs []llm.ChatMessage) []message {
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
