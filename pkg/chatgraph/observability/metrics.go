package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records conversation execution metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one state machine node execution.
	RecordNodeExecution(ctx context.Context, node string, duration time.Duration, err error)

	// RecordTurn records a completed conversation turn.
	RecordTurn(ctx context.Context, success bool, duration time.Duration)

	// RecordModelCall records one model provider call.
	RecordModelCall(ctx context.Context, provider, model string, duration time.Duration, err error)

	// RecordToolExecution records one tool call.
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, failed bool)

	// RecordCheckpoint records a checkpoint save operation.
	RecordCheckpoint(ctx context.Context, conversationID string, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	turns          metric.Int64Counter
	turnLatency    metric.Float64Histogram
	modelCalls     metric.Int64Counter
	modelLatency   metric.Float64Histogram
	toolCalls      metric.Int64Counter
	toolLatency    metric.Float64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("chatgraph")

	nodeExecutions, err := meter.Int64Counter("chatgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("chatgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("chatgraph.node.errors",
		metric.WithDescription("Number of node execution errors"),
	)
	if err != nil {
		return nil, err
	}

	turns, err := meter.Int64Counter("chatgraph.turns",
		metric.WithDescription("Number of conversation turns"),
	)
	if err != nil {
		return nil, err
	}

	turnLatency, err := meter.Float64Histogram("chatgraph.turn.latency_ms",
		metric.WithDescription("Turn latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	modelCalls, err := meter.Int64Counter("chatgraph.model.calls",
		metric.WithDescription("Number of model provider calls"),
	)
	if err != nil {
		return nil, err
	}

	modelLatency, err := meter.Float64Histogram("chatgraph.model.latency_ms",
		metric.WithDescription("Model call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	toolCalls, err := meter.Int64Counter("chatgraph.tool.calls",
		metric.WithDescription("Number of tool calls"),
	)
	if err != nil {
		return nil, err
	}

	toolLatency, err := meter.Float64Histogram("chatgraph.tool.latency_ms",
		metric.WithDescription("Tool call latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("chatgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		turns:          turns,
		turnLatency:    turnLatency,
		modelCalls:     modelCalls,
		modelLatency:   modelLatency,
		toolCalls:      toolCalls,
		toolLatency:    toolLatency,
		checkpointSize: checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, node string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node", node),
	}

	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTurn records a conversation turn.
func (m *otelMetrics) RecordTurn(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.turnLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordModelCall records a model provider call.
func (m *otelMetrics) RecordModelCall(ctx context.Context, provider, model string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	}
	m.modelCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.modelLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordToolExecution records a tool call.
func (m *otelMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, failed bool) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
		attribute.Bool("failed", failed),
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCheckpoint records a checkpoint save.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, conversationID string, sizeBytes int64) {
	attrs := []attribute.KeyValue{
		attribute.String("conversation_id", conversationID),
	}
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))
}
