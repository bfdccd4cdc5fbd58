package chatgraph

import (
	"log/slog"

	"github.com/assistkit/chatgraph/pkg/chatgraph/observability"
)

// DefaultMaxToolRounds bounds the chat/tool cycle within one turn.
const DefaultMaxToolRounds = 8

// Option configures an Executor.
type Option func(*Executor)

// WithLogger enables structured logging. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(e *Executor) {
		if metrics != nil {
			e.metrics = metrics
		}
	}
}

// WithTracing sets the span manager. Defaults to no-op.
func WithTracing(spans observability.SpanManager) Option {
	return func(e *Executor) {
		if spans != nil {
			e.spans = spans
		}
	}
}

// WithMaxToolRounds bounds the number of tool round-trips per turn.
// Exceeding the bound fails the turn with a LoopBoundError.
func WithMaxToolRounds(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// WithSystemPrompt injects a system-role message when a conversation is
// first created. Existing conversations are not modified.
func WithSystemPrompt(prompt string) Option {
	return func(e *Executor) {
		e.systemPrompt = prompt
	}
}

// WithMaxTokens caps model output length per completion call.
func WithMaxTokens(n int) Option {
	return func(e *Executor) {
		e.maxTokens = n
	}
}

// WithTemperature sets the model sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Executor) {
		e.temperature = t
	}
}

// runConfig holds per-call settings.
type runConfig struct {
	sink Sink
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// WithSink streams incremental model output to the given sink for this
// turn. The final assembled message is still appended to the
// conversation exactly once.
func WithSink(sink Sink) RunOption {
	return func(cfg *runConfig) {
		cfg.sink = sink
	}
}
