// Package gen layers structured-output generation on top of the provider
// abstraction: it asks the conversational endpoint for schema-constrained
// output and degrades through plain completion and weaker format constraints
// when the primary path cannot deliver JSON.
package gen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/llm"
)

// Transport names which endpoint produced the final text.
type Transport string

const (
	TransportChat       Transport = "chat"
	TransportCompletion Transport = "completion"
)

// Format names which response-shape constraint was in effect.
type Format string

const (
	FormatSchema Format = "schema"
	FormatJSON   Format = "json"
	FormatNone   Format = "none"
)

// Meta records how a generation result was produced. It is created once per
// request, never mutated afterward, and persisted for audit.
type Meta struct {
	Transport      Transport `json:"transport"`
	Format         Format    `json:"format"`
	FellBack       bool      `json:"fell_back"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	FinishReason   string    `json:"finish_reason,omitempty"`
	Model          string    `json:"model"`
	Usage          llm.Usage `json:"usage"`
}

// Request describes one structured generation.
type Request struct {
	Model       string // logical model id; empty uses the registry default
	System      string
	Prompt      string
	SchemaName  string
	Schema      json.RawMessage
	MaxTokens   int
	Temperature *float64 // nil takes the route default; zero is a valid pin
	Seed        int

	// Reliability forces the most deterministic parameters: temperature 0
	// and a raised output-token floor, regardless of caller-supplied values.
	Reliability bool
}

// Generator is the structured generation adapter.
type Generator struct {
	registry   *llm.Registry
	logger     *zap.Logger
	tokenFloor int
}

// New constructs a Generator. tokenFloor is the minimum max-token value
// applied in reliability mode (0 uses a built-in floor).
func New(registry *llm.Registry, tokenFloor int, logger *zap.Logger) *Generator {
	if tokenFloor <= 0 {
		tokenFloor = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{registry: registry, logger: logger, tokenFloor: tokenFloor}
}

// Structured generates text constrained by the request schema. The chat
// endpoint is tried first; empty content, loosely-non-JSON content, or a
// schema rejection fall back to the plain-completion path. Any other error
// is fatal at this layer (retries already happened inside the transport).
func (g *Generator) Structured(ctx context.Context, req Request) (string, Meta, error) {
	provider, route, err := g.registry.Resolve(req.Model)
	if err != nil {
		return "", Meta{}, err
	}

	temperature, maxTokens := g.effectiveParams(req, route)

	chatReq := llm.ChatRequest{
		Model:       route.Model,
		Messages:    buildMessages(req.System, req.Prompt),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Seed:        req.Seed,
		Format: llm.ResponseFormat{
			Kind:       llm.FormatSchema,
			SchemaName: req.SchemaName,
			Schema:     req.Schema,
		},
	}

	resp, chatErr := provider.Chat(ctx, chatReq)
	if chatErr == nil {
		text := resp.Message.Content
		switch {
		case strings.TrimSpace(text) == "":
			return g.completeFallback(ctx, provider, route, req, temperature, maxTokens, "empty_response")
		case !looksLikeJSON(text):
			return g.completeFallback(ctx, provider, route, req, temperature, maxTokens, "non_json_response")
		default:
			return text, Meta{
				Transport:    TransportChat,
				Format:       FormatSchema,
				FinishReason: resp.FinishReason,
				Model:        route.Name,
				Usage:        resp.Usage,
			}, nil
		}
	}

	if errors.Is(chatErr, llm.ErrFormatUnsupported) {
		return g.completeFallback(ctx, provider, route, req, temperature, maxTokens, "schema_rejected")
	}
	return "", Meta{}, fmt.Errorf("chat generation: %w", chatErr)
}

// StructuredObject generates and decodes into out, retrying exactly once more
// through the plain-completion path when the first text fails to decode.
func (g *Generator) StructuredObject(ctx context.Context, req Request, out any) (Meta, error) {
	text, meta, err := g.Structured(ctx, req)
	if err != nil {
		return meta, err
	}

	decodeErr := decodeLoose(text, out)
	if decodeErr == nil {
		return meta, nil
	}

	// One extra pass through the weaker transport before surfacing.
	provider, route, err := g.registry.Resolve(req.Model)
	if err != nil {
		return meta, err
	}
	temperature, maxTokens := g.effectiveParams(req, route)

	retryText, retryMeta, retryErr := g.completeFallback(ctx, provider, route, req, temperature, maxTokens, "object_decode_failed")
	if retryErr != nil {
		return meta, errors.Join(decodeErr, retryErr)
	}
	if err := decodeLoose(retryText, out); err != nil {
		return retryMeta, errors.Join(decodeErr, err)
	}
	return retryMeta, nil
}

// completeFallback drives the plain-completion ladder: free-form JSON format
// first, then no constraint at all if the endpoint rejects json_object.
func (g *Generator) completeFallback(ctx context.Context, provider llm.Provider, route llm.ModelRoute, req Request, temperature float64, maxTokens int, reason string) (string, Meta, error) {
	g.logger.Debug("structured generation falling back to completion",
		zap.String("model", route.Name),
		zap.String("reason", reason))

	compReq := llm.CompletionRequest{
		Model:       route.Model,
		Prompt:      joinPrompt(req.System, req.Prompt),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Seed:        req.Seed,
		Format:      llm.ResponseFormat{Kind: llm.FormatJSON},
	}

	format := FormatJSON
	resp, err := provider.Complete(ctx, compReq)
	if errors.Is(err, llm.ErrFormatUnsupported) {
		compReq.Format = llm.ResponseFormat{Kind: llm.FormatNone}
		format = FormatNone
		resp, err = provider.Complete(ctx, compReq)
	}
	if err != nil {
		return "", Meta{}, fmt.Errorf("completion fallback (%s): %w", reason, err)
	}

	return resp.Text, Meta{
		Transport:      TransportCompletion,
		Format:         format,
		FellBack:       true,
		FallbackReason: reason,
		FinishReason:   resp.FinishReason,
		Model:          route.Name,
		Usage:          resp.Usage,
	}, nil
}

func (g *Generator) effectiveParams(req Request, route llm.ModelRoute) (float64, int) {
	temperature := route.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = route.MaxTokens
	}
	if req.Reliability {
		temperature = 0
		if maxTokens < g.tokenFloor {
			maxTokens = g.tokenFloor
		}
	}
	return temperature, maxTokens
}

func buildMessages(system, prompt string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, 2)
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: system})
	}
	msgs = append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: prompt})
	return msgs
}

func joinPrompt(system, prompt string) string {
	if strings.TrimSpace(system) == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

// looksLikeJSON reports whether text is at least loosely JSON: a strict parse
// or an outermost {...} span that parses.
func looksLikeJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return true
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Valid([]byte(trimmed[start : end+1]))
}

func decodeLoose(text string, out any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return json.Unmarshal([]byte(trimmed[start:end+1]), out)
	}
	return fmt.Errorf("decode structured object: text is not JSON")
}
