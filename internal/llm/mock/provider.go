package mock

import (
	"context"

	"github.com/animus-coder/oraclebench/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue  string
	ChatFn     func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	CompleteFn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	ChatCalls     []llm.ChatRequest
	CompleteCalls []llm.CompletionRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.ChatCalls = append(p.ChatCalls, req)
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: "mock",
		},
		FinishReason: llm.FinishStop,
	}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	p.CompleteCalls = append(p.CompleteCalls, req)
	if p.CompleteFn != nil {
		return p.CompleteFn(ctx, req)
	}
	return llm.CompletionResponse{Text: "mock", FinishReason: llm.FinishStop}, nil
}
