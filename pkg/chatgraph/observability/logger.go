// Package observability provides structured logging, metrics, and
// distributed tracing for conversation execution.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds conversation context to a logger.
// Returns a new logger with conversation_id, node, and turn fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "conv-123", "chat", 4)
//	enriched.Info("doing work") // includes conversation_id, node, turn
func EnrichLogger(logger *slog.Logger, conversationID, node string, turn int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("conversation_id", conversationID),
		slog.String("node", node),
		slog.Int("turn", turn),
	)
}

// LogTurnStart logs the start of a conversation turn.
func LogTurnStart(logger *slog.Logger, conversationID string, turn int) {
	if logger == nil {
		return
	}
	logger.Info("turn starting",
		slog.String("conversation_id", conversationID),
		slog.Int("turn", turn),
	)
}

// LogTurnComplete logs successful turn completion.
func LogTurnComplete(logger *slog.Logger, conversationID string, durationMs float64, toolRounds int) {
	if logger == nil {
		return
	}
	logger.Info("turn completed",
		slog.String("conversation_id", conversationID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("tool_rounds", toolRounds),
	)
}

// LogTurnError logs turn failure.
func LogTurnError(logger *slog.Logger, conversationID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("turn failed",
		slog.String("conversation_id", conversationID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, node string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node", node),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, node string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node", node),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, node string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node", node),
		slog.String("error", err.Error()),
	)
}

// LogToolExecution logs one tool call outcome.
func LogToolExecution(logger *slog.Logger, name, callID string, durationMs float64, failed bool) {
	if logger == nil {
		return
	}
	logger.Debug("tool executed",
		slog.String("tool", name),
		slog.String("call_id", callID),
		slog.Float64("duration_ms", durationMs),
		slog.Bool("failed", failed),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, conversationID string, sizeBytes int, version int64) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("conversation_id", conversationID),
		slog.Int("size_bytes", sizeBytes),
		slog.Int64("version", version),
	)
}

// LogCheckpointError logs checkpoint failure.
func LogCheckpointError(logger *slog.Logger, conversationID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("conversation_id", conversationID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
