package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	cerrors "github.com/assistkit/chatgraph/pkg/chatgraph/errors"
	"github.com/assistkit/chatgraph/pkg/chatgraph/observability"
)

// Candidate is one entry in the fallback chain: a provider client pinned
// to a specific model identifier.
type Candidate struct {
	Provider string
	Model    string
	Client   Client
}

// FallbackClient tries an ordered list of model candidates.
//
// Each candidate gets its own retry budget for transient failures.
// A non-retryable error, or exhaustion of the retry budget, advances to
// the next candidate. When every candidate has failed the call returns
// an UnavailableError listing each candidate's final error.
//
// Per-candidate circuit breakers skip candidates that have failed
// repeatedly, and an optional rate limiter paces individual attempts.
type FallbackClient struct {
	candidates []Candidate
	breakers   []*Breaker
	retry      cerrors.RetryConfig
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
}

// FallbackOption configures a FallbackClient.
type FallbackOption func(*FallbackClient)

// WithRetryConfig sets the per-candidate retry policy.
func WithRetryConfig(cfg cerrors.RetryConfig) FallbackOption {
	return func(f *FallbackClient) {
		f.retry = cfg
	}
}

// WithRateLimit paces attempts across all candidates.
func WithRateLimit(limit rate.Limit, burst int) FallbackOption {
	return func(f *FallbackClient) {
		f.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithBreakerConfig sets the per-candidate circuit breaker policy.
func WithBreakerConfig(cfg BreakerConfig) FallbackOption {
	return func(f *FallbackClient) {
		for i := range f.breakers {
			f.breakers[i] = NewBreaker(cfg)
		}
	}
}

// WithLogger attaches a logger for attempt-level diagnostics.
func WithLogger(logger *slog.Logger) FallbackOption {
	return func(f *FallbackClient) {
		f.logger = logger
	}
}

// WithMetrics records per-candidate call counts and latency.
func WithMetrics(metrics observability.MetricsRecorder) FallbackOption {
	return func(f *FallbackClient) {
		f.metrics = metrics
	}
}

// NewFallback creates a fallback client over the given candidates.
// Candidates are tried in order.
func NewFallback(candidates []Candidate, opts ...FallbackOption) (*FallbackClient, error) {
	if len(candidates) == 0 {
		return nil, errors.New("at least one model candidate is required")
	}
	for i, c := range candidates {
		if c.Client == nil {
			return nil, fmt.Errorf("candidate %d (%s/%s): nil client", i, c.Provider, c.Model)
		}
		if c.Model == "" {
			return nil, fmt.Errorf("candidate %d (%s): empty model", i, c.Provider)
		}
	}

	f := &FallbackClient{
		candidates: candidates,
		breakers:   make([]*Breaker, len(candidates)),
		retry:      cerrors.DefaultRetry,
	}
	for i := range f.breakers {
		f.breakers[i] = NewBreaker(DefaultBreakerConfig())
	}
	for _, opt := range opts {
		opt(f)
	}
	f.retry.RetryableFunc = IsRetryable
	return f, nil
}

// Complete implements Invoker.
func (f *FallbackClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f.run(ctx, req, nil)
}

// CompleteStream implements Invoker. The sink is reset before every
// attempt, so a consumer only ever sees one attempt's output.
func (f *FallbackClient) CompleteStream(ctx context.Context, req CompletionRequest, sink Sink) (*CompletionResponse, error) {
	return f.run(ctx, req, sink)
}

// sinkError marks a failure in the caller's sink rather than the
// provider. It aborts the fallback chain instead of advancing it.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return "sink write: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func (f *FallbackClient) run(ctx context.Context, req CompletionRequest, sink Sink) (*CompletionResponse, error) {
	failures := make([]*CandidateError, 0, len(f.candidates))

	for i, candidate := range f.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		breaker := f.breakers[i]
		if err := breaker.Allow(); err != nil {
			failures = append(failures, &CandidateError{
				Provider: candidate.Provider,
				Model:    candidate.Model,
				Err:      err,
			})
			f.log(ctx, slog.LevelDebug, "model candidate skipped",
				"provider", candidate.Provider, "model", candidate.Model, "reason", err)
			continue
		}

		attemptReq := req
		attemptReq.Model = candidate.Model

		retryCfg := f.retry
		retryCfg.OnRetry = func(attempt int, err error) {
			f.log(ctx, slog.LevelDebug, "model attempt failed, retrying",
				"provider", candidate.Provider,
				"model", candidate.Model,
				"attempt", attempt,
				"error", err)
		}

		result := cerrors.WithRetryContext(ctx, retryCfg, func(ctx context.Context) (*CompletionResponse, error) {
			if f.limiter != nil {
				if err := f.limiter.Wait(ctx); err != nil {
					return nil, fmt.Errorf("rate limit wait: %w", err)
				}
			}
			resp, err := f.attempt(ctx, candidate, attemptReq, sink)
			if err != nil {
				breaker.Failure()
				return nil, err
			}
			breaker.Success()
			return resp, nil
		})

		if f.metrics != nil {
			f.metrics.RecordModelCall(ctx, candidate.Provider, candidate.Model, result.Duration, result.Err)
		}

		if result.Err == nil {
			f.log(ctx, slog.LevelDebug, "model call succeeded",
				"provider", candidate.Provider,
				"model", candidate.Model,
				"attempts", result.Attempts,
				"duration", result.Duration)
			return result.Value, nil
		}

		var sErr *sinkError
		if errors.As(result.Err, &sErr) {
			return nil, sErr.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		failures = append(failures, &CandidateError{
			Provider: candidate.Provider,
			Model:    candidate.Model,
			Err:      result.Err,
		})
		f.log(ctx, slog.LevelWarn, "model candidate exhausted",
			"provider", candidate.Provider,
			"model", candidate.Model,
			"attempts", result.Attempts,
			"error", result.Err)
	}

	return nil, &UnavailableError{Failures: failures}
}

// attempt performs one provider call, streaming through the sink when set.
func (f *FallbackClient) attempt(ctx context.Context, candidate Candidate, req CompletionRequest, sink Sink) (*CompletionResponse, error) {
	if sink == nil {
		return candidate.Client.Complete(ctx, req)
	}

	sink.Reset()
	ch, err := candidate.Client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectStream(ctx, ch, sink, candidate.Model)
}

// collectStream drains a stream channel, forwarding chunks to the sink
// and assembling the full response.
//
// A well-formed stream ends with a Done chunk. Providers close the
// channel without one when the context is cancelled mid-stream, so
// closure alone must not be mistaken for a complete response.
func collectStream(ctx context.Context, ch <-chan StreamChunk, sink Sink, model string) (*CompletionResponse, error) {
	start := time.Now()
	var content strings.Builder
	var toolCalls []ToolCall
	var usage TokenUsage
	var done bool

	for chunk := range ch {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if err := sink.Write(ctx, chunk); err != nil {
			return nil, &sinkError{err: err}
		}
		content.WriteString(chunk.Content)
		toolCalls = append(toolCalls, chunk.ToolCalls...)
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if chunk.Done {
			done = true
		}
	}

	if !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, NewError("stream", "", errors.New("stream closed before completion"), true)
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}

	return &CompletionResponse{
		Content:      content.String(),
		ToolCalls:    toolCalls,
		Usage:        usage,
		Model:        model,
		FinishReason: finishReason,
		Duration:     time.Since(start),
	}, nil
}

func (f *FallbackClient) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Log(ctx, level, msg, args...)
}
