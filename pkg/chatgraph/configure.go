package chatgraph

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/assistkit/chatgraph/pkg/chatgraph/checkpoint"
	"github.com/assistkit/chatgraph/pkg/chatgraph/config"
	cerrors "github.com/assistkit/chatgraph/pkg/chatgraph/errors"
	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
	"github.com/assistkit/chatgraph/pkg/chatgraph/tool"
)

// NewFromConfig assembles a full executor from a configuration tree:
// checkpoint store, model fallback chain, and executor tuning. Extra
// options are applied after the configured ones and win on conflict.
//
// Expected layout:
//
//	storage:
//	  driver: sqlite          # or "memory"
//	  path: conversations.db
//	models:
//	  - provider: openai
//	    model: gpt-4o
//	    api_key: ${OPENAI_API_KEY}
//	  - provider: gemini
//	    model: gemini-2.0-flash
//	    api_key: ${GEMINI_API_KEY}
//	retry:
//	  max_attempts: 3
//	  initial_backoff: 500ms
//	rate_limit:
//	  requests_per_second: 5
//	  burst: 10
//	breaker:
//	  failure_threshold: 5
//	  success_threshold: 2
//	  cooldown: 30s
//	executor:
//	  max_tool_rounds: 8
//	  system_prompt: "You are a helpful assistant."
//	model:
//	  max_tokens: 2048
//	  temperature: 0.7
func NewFromConfig(ctx context.Context, cfg config.Config, tools *tool.Registry, extra ...Option) (*Executor, error) {
	store, err := StoreFromConfig(cfg.Sub("storage"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	candidates, err := CandidatesFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}

	model, err := llm.NewFallback(candidates, FallbackOptionsFromConfig(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}

	opts := append(OptionsFromConfig(cfg), extra...)
	return New(store, model, tools, opts...)
}

// StoreFromConfig builds a checkpoint store from a storage section.
// The default driver is the in-memory store.
func StoreFromConfig(cfg config.Config) (checkpoint.Store, error) {
	driver := cfg.String("driver", "memory")
	switch driver {
	case "memory":
		return checkpoint.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.String("path", "")
		if path == "" {
			return nil, fmt.Errorf("sqlite driver requires a path")
		}
		return checkpoint.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// CandidatesFromConfig builds the ordered model fallback chain from the
// "models" list. Each entry needs a provider, a model identifier, and an
// API key.
func CandidatesFromConfig(ctx context.Context, cfg config.Config) ([]llm.Candidate, error) {
	entries := cfg.SubSlice("models")
	if len(entries) == 0 {
		return nil, fmt.Errorf("no model candidates configured")
	}

	candidates := make([]llm.Candidate, 0, len(entries))
	for i, entry := range entries {
		provider := entry.String("provider", "")
		model := entry.String("model", "")
		apiKey := entry.String("api_key", "")
		if model == "" {
			return nil, fmt.Errorf("candidate %d: model is required", i)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("candidate %d (%s/%s): api_key is required", i, provider, model)
		}

		var client llm.Client
		switch provider {
		case "openai":
			client = llm.NewOpenAIClient(apiKey)
		case "gemini":
			c, err := llm.NewGeminiClient(ctx, apiKey)
			if err != nil {
				return nil, fmt.Errorf("candidate %d (%s): %w", i, model, err)
			}
			client = c
		default:
			return nil, fmt.Errorf("candidate %d: unknown provider %q", i, provider)
		}

		candidates = append(candidates, llm.Candidate{
			Provider: provider,
			Model:    model,
			Client:   client,
		})
	}
	return candidates, nil
}

// FallbackOptionsFromConfig translates the retry, rate_limit, and
// breaker sections into fallback client options. Absent sections keep
// the fallback defaults.
func FallbackOptionsFromConfig(cfg config.Config) []llm.FallbackOption {
	var opts []llm.FallbackOption

	if cfg.Has("retry") {
		sub := cfg.Sub("retry")
		retry := cerrors.DefaultRetry
		retry.MaxAttempts = sub.Int("max_attempts", retry.MaxAttempts)
		retry.InitialBackoff = sub.Duration("initial_backoff", retry.InitialBackoff)
		retry.MaxBackoff = sub.Duration("max_backoff", retry.MaxBackoff)
		retry.BackoffFactor = sub.Float("backoff_factor", retry.BackoffFactor)
		retry.Jitter = sub.Float("jitter", retry.Jitter)
		opts = append(opts, llm.WithRetryConfig(retry))
	}

	if cfg.Has("rate_limit") {
		sub := cfg.Sub("rate_limit")
		rps := sub.Float("requests_per_second", 0)
		if rps > 0 {
			burst := sub.Int("burst", 1)
			opts = append(opts, llm.WithRateLimit(rate.Limit(rps), burst))
		}
	}

	if cfg.Has("breaker") {
		sub := cfg.Sub("breaker")
		breaker := llm.DefaultBreakerConfig()
		breaker.FailureThreshold = sub.Int("failure_threshold", breaker.FailureThreshold)
		breaker.SuccessThreshold = sub.Int("success_threshold", breaker.SuccessThreshold)
		breaker.Cooldown = sub.Duration("cooldown", breaker.Cooldown)
		opts = append(opts, llm.WithBreakerConfig(breaker))
	}

	return opts
}

// OptionsFromConfig translates the executor and model sections into
// executor options.
func OptionsFromConfig(cfg config.Config) []Option {
	var opts []Option

	exec := cfg.Sub("executor")
	if n := exec.Int("max_tool_rounds", 0); n > 0 {
		opts = append(opts, WithMaxToolRounds(n))
	}
	if prompt := exec.String("system_prompt", ""); prompt != "" {
		opts = append(opts, WithSystemPrompt(prompt))
	}

	model := cfg.Sub("model")
	if n := model.Int("max_tokens", 0); n > 0 {
		opts = append(opts, WithMaxTokens(n))
	}
	if model.Has("temperature") {
		opts = append(opts, WithTemperature(model.Float("temperature", 0)))
	}

	return opts
}
