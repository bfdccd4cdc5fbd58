package chatgraph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistkit/chatgraph/pkg/chatgraph/checkpoint"
	"github.com/assistkit/chatgraph/pkg/chatgraph/config"
)

func TestStoreFromConfig(t *testing.T) {
	t.Run("defaults to memory", func(t *testing.T) {
		store, err := StoreFromConfig(config.New(nil))
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &checkpoint.MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conv.db")
		store, err := StoreFromConfig(config.New(map[string]any{
			"driver": "sqlite",
			"path":   path,
		}))
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &checkpoint.SQLiteStore{}, store)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := StoreFromConfig(config.New(map[string]any{"driver": "sqlite"}))
		assert.ErrorContains(t, err, "path")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := StoreFromConfig(config.New(map[string]any{"driver": "etcd"}))
		assert.ErrorContains(t, err, "etcd")
	})
}

func TestCandidatesFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		_, err := CandidatesFromConfig(ctx, config.New(nil))
		assert.ErrorContains(t, err, "no model candidates")
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := CandidatesFromConfig(ctx, config.New(map[string]any{
			"models": []any{map[string]any{"provider": "openai", "api_key": "k"}},
		}))
		assert.ErrorContains(t, err, "model is required")
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := CandidatesFromConfig(ctx, config.New(map[string]any{
			"models": []any{map[string]any{"provider": "openai", "model": "gpt-4o"}},
		}))
		assert.ErrorContains(t, err, "api_key")
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := CandidatesFromConfig(ctx, config.New(map[string]any{
			"models": []any{map[string]any{"provider": "cohere", "model": "m", "api_key": "k"}},
		}))
		assert.ErrorContains(t, err, "cohere")
	})

	t.Run("ordered openai candidates", func(t *testing.T) {
		candidates, err := CandidatesFromConfig(ctx, config.New(map[string]any{
			"models": []any{
				map[string]any{"provider": "openai", "model": "gpt-4o", "api_key": "k1"},
				map[string]any{"provider": "openai", "model": "gpt-4o-mini", "api_key": "k2"},
			},
		}))
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, "gpt-4o", candidates[0].Model)
		assert.Equal(t, "gpt-4o-mini", candidates[1].Model)
		assert.NotNil(t, candidates[0].Client)
	})
}

func TestFallbackOptionsFromConfig(t *testing.T) {
	t.Run("empty config keeps defaults", func(t *testing.T) {
		assert.Empty(t, FallbackOptionsFromConfig(config.New(nil)))
	})

	t.Run("all sections", func(t *testing.T) {
		opts := FallbackOptionsFromConfig(config.New(map[string]any{
			"retry": map[string]any{
				"max_attempts":    5,
				"initial_backoff": "100ms",
			},
			"rate_limit": map[string]any{
				"requests_per_second": 2.0,
				"burst":               4,
			},
			"breaker": map[string]any{
				"failure_threshold": 3,
				"cooldown":          "10s",
			},
		}))
		assert.Len(t, opts, 3)
	})

	t.Run("zero rate limit skipped", func(t *testing.T) {
		opts := FallbackOptionsFromConfig(config.New(map[string]any{
			"rate_limit": map[string]any{"requests_per_second": 0},
		}))
		assert.Empty(t, opts)
	})
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.New(map[string]any{
		"executor": map[string]any{
			"max_tool_rounds": 4,
			"system_prompt":   "be terse",
		},
		"model": map[string]any{
			"max_tokens":  512,
			"temperature": 0.3,
		},
	}))

	exec, err := New(checkpoint.NewMemoryStore(), &scriptedModel{}, nil, opts...)
	require.NoError(t, err)

	assert.Equal(t, 4, exec.maxToolRounds)
	assert.Equal(t, "be terse", exec.systemPrompt)
	assert.Equal(t, 512, exec.maxTokens)
	assert.InDelta(t, 0.3, exec.temperature, 1e-9)
}

func TestNewFromConfig(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
storage:
  driver: memory
models:
  - provider: openai
    model: gpt-4o
    api_key: test-key
retry:
  max_attempts: 2
  initial_backoff: 1ms
executor:
  max_tool_rounds: 3
`))
	require.NoError(t, err)

	exec, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, exec.maxToolRounds)
}

func TestNewFromConfig_BadStorage(t *testing.T) {
	cfg := config.New(map[string]any{
		"storage": map[string]any{"driver": "bogus"},
	})
	_, err := NewFromConfig(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "storage")
}
