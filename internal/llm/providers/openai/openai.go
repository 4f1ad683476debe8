package openai

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

// Provider implements an OpenAI-compatible client for both the chat and the
// plain-completion endpoints. All requests go through the retry policy.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
	retry   llm.RetryPolicy
}

// NewProvider constructs a Provider with sane defaults.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration, retry llm.RetryPolicy) *Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
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
		Model:       req.Model,
		Messages:    toMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Format:      toResponseFormat(req.Format),
	}
	if req.Seed != 0 {
		body.Seed = &req.Seed
	}

	var resp chatResponse
	if err := p.post(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return llm.ChatResponse{}, classifyFormatError(err, req.Format)
	}

	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai: empty choices")
	}

	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.Role(choice.Message.Role),
			Content: choice.Message.Content,
		},
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Complete executes a plain text completion.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if req.Model == "" {
		return llm.CompletionResponse{}, fmt.Errorf("model is required")
	}

	body := completionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Format:      toResponseFormat(req.Format),
	}
	if req.Seed != 0 {
		body.Seed = &req.Seed
	}

	var resp completionResponse
	if err := p.post(ctx, "/v1/completions", body, &resp); err != nil {
		return llm.CompletionResponse{}, classifyFormatError(err, req.Format)
	}

	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, fmt.Errorf("openai: empty choices")
	}

	choice := resp.Choices[0]
	return llm.CompletionResponse{
		Text:         choice.Text,
		FinishReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// post sends one JSON request through the retry policy and decodes the reply.
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
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

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

// classifyFormatError maps a 4xx rejection of the response_format parameter
// onto llm.ErrFormatUnsupported so callers can drop the constraint.
func classifyFormatError(err error, format llm.ResponseFormat) error {
	if err == nil || format.Kind == llm.FormatNone {
		return err
	}
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	if statusErr.Code != http.StatusBadRequest && statusErr.Code != http.StatusUnprocessableEntity {
		return err
	}
	body := strings.ToLower(statusErr.Body)
	if strings.Contains(body, "response_format") || strings.Contains(body, "json_schema") {
		return fmt.Errorf("%w: %s", llm.ErrFormatUnsupported, statusErr.Body)
	}
	return err
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

func toResponseFormat(f llm.ResponseFormat) *responseFormat {
	switch f.Kind {
	case llm.FormatJSON:
		return &responseFormat{Type: "json_object"}
	case llm.FormatSchema:
		name := f.SchemaName
		if name == "" {
			name = "response"
		}
		return &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: name, Strict: true, Schema: f.Schema},
		}
	default:
		return nil
	}
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []message       `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Seed        *int            `json:"seed,omitempty"`
	Format      *responseFormat `json:"response_format,omitempty"`
}

type completionRequest struct {
	Model       string          `json:"model"`
	Prompt      string          `json:"prompt"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Seed        *int            `json:"seed,omitempty"`
	Format      *responseFormat `json:"response_format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage usage `json:"usage"`
}

func toMessages(msgs []llm.ChatMessage) []message {
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
