package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds conversation_id, node, and turn", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "conv-123", "chat", 2)
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "conv-123", record["conversation_id"])
		assert.Equal(t, "chat", record["node"])
		assert.Equal(t, float64(2), record["turn"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "conv-123", "chat", 1))
	})
}

func TestLogTurnStart(t *testing.T) {
	h := newTestHandler()
	LogTurnStart(slog.New(h), "conv-123", 4)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "turn starting", record["msg"])
	assert.Equal(t, "conv-123", record["conversation_id"])
	assert.Equal(t, float64(4), record["turn"])

	// Nil logger must not panic
	LogTurnStart(nil, "conv-123", 4)
}

func TestLogTurnComplete(t *testing.T) {
	h := newTestHandler()
	LogTurnComplete(slog.New(h), "conv-123", 125.5, 2)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "turn completed", record["msg"])
	assert.Equal(t, 125.5, record["duration_ms"])
	assert.Equal(t, float64(2), record["tool_rounds"])

	LogTurnComplete(nil, "conv-123", 1, 0)
}

func TestLogTurnError(t *testing.T) {
	h := newTestHandler()
	LogTurnError(slog.New(h), "conv-123", errors.New("model unavailable"), 50, "chat")

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "turn failed", record["msg"])
	assert.Equal(t, "model unavailable", record["error"])
	assert.Equal(t, "chat", record["last_node"])

	LogTurnError(nil, "conv-123", errors.New("x"), 0, "chat")
}

func TestLogNodeLifecycle(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogNodeStart(logger, "tools")
	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "node starting", record["msg"])
	assert.Equal(t, "tools", record["node"])

	LogNodeComplete(logger, "tools", 12.0)
	record = h.getLastRecord()
	assert.Equal(t, "node completed", record["msg"])
	assert.Equal(t, 12.0, record["duration_ms"])

	LogNodeError(logger, "tools", errors.New("boom"))
	record = h.getLastRecord()
	assert.Equal(t, "node failed", record["msg"])
	assert.Equal(t, "boom", record["error"])

	LogNodeStart(nil, "tools")
	LogNodeComplete(nil, "tools", 0)
	LogNodeError(nil, "tools", errors.New("x"))
}

func TestLogToolExecution(t *testing.T) {
	h := newTestHandler()
	LogToolExecution(slog.New(h), "get_weather", "call_1", 33.0, true)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "tool executed", record["msg"])
	assert.Equal(t, "get_weather", record["tool"])
	assert.Equal(t, "call_1", record["call_id"])
	assert.Equal(t, true, record["failed"])

	LogToolExecution(nil, "get_weather", "call_1", 0, false)
}

func TestLogCheckpoint(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogCheckpoint(logger, "conv-123", 2048, 7)
	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "checkpoint saved", record["msg"])
	assert.Equal(t, float64(2048), record["size_bytes"])
	assert.Equal(t, float64(7), record["version"])

	LogCheckpointError(logger, "conv-123", "save", errors.New("disk full"))
	record = h.getLastRecord()
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "checkpoint failed", record["msg"])
	assert.Equal(t, "save", record["operation"])

	LogCheckpoint(nil, "conv-123", 0, 0)
	LogCheckpointError(nil, "conv-123", "save", errors.New("x"))
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(10 * time.Millisecond)
	elapsed := done()

	assert.GreaterOrEqual(t, elapsed, float64(5))
}
