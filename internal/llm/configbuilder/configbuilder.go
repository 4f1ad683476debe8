package configbuilder

import (
	"fmt"
	"time"

	"github.com/animus-coder/oraclebench/internal/config"
	"github.com/animus-coder/oraclebench/internal/llm"
	llmollama "github.com/animus-coder/oraclebench/internal/llm/providers/ollama"
	llmopenai "github.com/animus-coder/oraclebench/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs a registry, providers, and role bindings from config.
func BuildRegistryFromConfig(cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()
	retry := retryPolicy(cfg.Transport)

	for name, pCfg := range cfg.Providers {
		p, err := buildProvider(name, pCfg, retry)
		if err != nil {
			return nil, err
		}
		reg.RegisterProvider(name, p)
	}

	for name, mCfg := range cfg.Models {
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       mCfg.Model,
			Temperature: mCfg.Temperature,
			MaxTokens:   mCfg.MaxTokens,
		}, mCfg.Default)
	}

	reg.BindRole(llm.RoleTarget, cfg.Roles.Target)
	reg.BindRole(llm.RolePlanner, cfg.Roles.Planner)
	reg.BindRole(llm.RoleRepair, cfg.Roles.Repair)
	reg.BindRole(llm.RoleReviewer, cfg.Roles.Reviewer)

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

func retryPolicy(cfg config.TransportConfig) llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(cfg.BaseDelayMS) * time.Millisecond
	}
	if cfg.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(cfg.MaxDelayMS) * time.Millisecond
	}
	if len(cfg.RetryableStatuses) > 0 {
		policy.RetryableStatuses = cfg.RetryableStatuses
	}
	return policy
}

func buildProvider(name string, cfg config.ProviderConfig, retry llm.RetryPolicy) (llm.Provider, error) {
	switch cfg.Type {
	case "openai", "openrouter", "vllm", "lmstudio", "custom":
		return llmopenai.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout, retry), nil
	case "ollama":
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout, retry), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}
