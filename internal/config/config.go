package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Roles     RolesConfig               `mapstructure:"roles"`
	Transport TransportConfig           `mapstructure:"transport"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents an LLM endpoint such as an OpenAI-compatible gateway or Ollama.
type ProviderConfig struct {
	Type    string        `mapstructure:"type"`     // openai, openrouter, ollama, vllm, lmstudio, custom
	BaseURL string        `mapstructure:"base_url"` // API base URL
	APIKey  string        `mapstructure:"api_key"`  // optional API key
	Timeout time.Duration `mapstructure:"timeout"`  // per-request timeout
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// RolesConfig assigns logical models to pipeline phases. Empty values fall back
// to the default model.
type RolesConfig struct {
	Target   string `mapstructure:"target"`
	Planner  string `mapstructure:"planner"`
	Repair   string `mapstructure:"repair"`
	Reviewer string `mapstructure:"reviewer"`
}

// TransportConfig tunes the retrying transport. The retryable status set and
// backoff constants are policy, not contract, so they live in configuration.
type TransportConfig struct {
	MaxAttempts       int   `mapstructure:"max_attempts"`
	BaseDelayMS       int   `mapstructure:"base_delay_ms"`
	MaxDelayMS        int   `mapstructure:"max_delay_ms"`
	RetryableStatuses []int `mapstructure:"retryable_statuses"`
}

// PipelineConfig describes the iteration controller runtime parameters.
type PipelineConfig struct {
	MaxIterations         int    `mapstructure:"max_iterations"`
	FallbackMode          string `mapstructure:"fallback_mode"` // off, on-fail, always
	TokenFloor            int    `mapstructure:"token_floor"`
	TruncationTokenFloor  int    `mapstructure:"truncation_token_floor"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds"`
	RunTimeoutSeconds     int    `mapstructure:"run_timeout_seconds"`
	WorkDir               string `mapstructure:"work_dir"`
	OutputDir             string `mapstructure:"output_dir"`
	EnablePlanner         bool   `mapstructure:"enable_planner"`
	EnableReviewer        bool   `mapstructure:"enable_reviewer"`
	MaxLogBytes           int    `mapstructure:"max_log_bytes"`
	MaxSnippetLines       int    `mapstructure:"max_snippet_lines"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: ORACLEBENCH_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ORACLEBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("transport.max_attempts", 5)
	v.SetDefault("transport.base_delay_ms", 500)
	v.SetDefault("transport.max_delay_ms", 8000)
	v.SetDefault("transport.retryable_statuses", []int{408, 409, 425, 429, 500, 502, 503, 504})

	v.SetDefault("pipeline.max_iterations", 6)
	v.SetDefault("pipeline.fallback_mode", "off")
	v.SetDefault("pipeline.token_floor", 4096)
	v.SetDefault("pipeline.truncation_token_floor", 8192)
	v.SetDefault("pipeline.command_timeout_seconds", 120)
	v.SetDefault("pipeline.run_timeout_seconds", 0)
	v.SetDefault("pipeline.work_dir", "work")
	v.SetDefault("pipeline.output_dir", "runs")
	v.SetDefault("pipeline.enable_planner", false)
	v.SetDefault("pipeline.enable_reviewer", false)
	v.SetDefault("pipeline.max_log_bytes", 4096)
	v.SetDefault("pipeline.max_snippet_lines", 40)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	var defaultFound bool
	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	for _, modelID := range []string{c.Roles.Target, c.Roles.Planner, c.Roles.Repair, c.Roles.Reviewer} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("roles reference unknown model %q", modelID)
		}
	}

	if c.Transport.MaxAttempts <= 0 {
		return errors.New("transport.max_attempts must be > 0")
	}
	if c.Transport.BaseDelayMS <= 0 {
		return errors.New("transport.base_delay_ms must be > 0")
	}
	if c.Transport.MaxDelayMS < c.Transport.BaseDelayMS {
		return errors.New("transport.max_delay_ms must be >= transport.base_delay_ms")
	}

	if c.Pipeline.MaxIterations <= 0 {
		return errors.New("pipeline.max_iterations must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Pipeline.FallbackMode)) {
	case "off", "on-fail", "always":
	default:
		return fmt.Errorf("pipeline.fallback_mode must be one of off, on-fail, always, got %q", c.Pipeline.FallbackMode)
	}
	if c.Pipeline.TokenFloor <= 0 {
		return errors.New("pipeline.token_floor must be > 0")
	}
	if c.Pipeline.TruncationTokenFloor < c.Pipeline.TokenFloor {
		return errors.New("pipeline.truncation_token_floor must be >= pipeline.token_floor")
	}
	if c.Pipeline.CommandTimeoutSeconds <= 0 {
		return errors.New("pipeline.command_timeout_seconds must be > 0")
	}
	if c.Pipeline.RunTimeoutSeconds < 0 {
		return errors.New("pipeline.run_timeout_seconds must be >= 0")
	}
	if c.Pipeline.MaxLogBytes <= 0 {
		return errors.New("pipeline.max_log_bytes must be > 0")
	}
	if c.Pipeline.MaxSnippetLines <= 0 {
		return errors.New("pipeline.max_snippet_lines must be > 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

// FallbackModeNormalized returns the lowercase trimmed fallback mode.
func (c *Config) FallbackModeNormalized() string {
	return strings.ToLower(strings.TrimSpace(c.Pipeline.FallbackMode))
}
