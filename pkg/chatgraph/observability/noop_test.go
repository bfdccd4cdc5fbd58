package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics(t *testing.T) {
	ctx := context.Background()
	m := NoopMetrics{}

	// None of these may panic or allocate observable state
	m.RecordNodeExecution(ctx, "chat", time.Second, nil)
	m.RecordNodeExecution(ctx, "chat", time.Second, errors.New("err"))
	m.RecordTurn(ctx, true, time.Second)
	m.RecordModelCall(ctx, "openai", "gpt-4o", time.Second, nil)
	m.RecordToolExecution(ctx, "get_weather", time.Second, true)
	m.RecordCheckpoint(ctx, "conv-1", 100)
}

func TestNoopSpanManager(t *testing.T) {
	ctx := context.Background()
	sm := NoopSpanManager{}

	turnCtx, span := sm.StartTurnSpan(ctx, "conv-1", 1)
	assert.Equal(t, ctx, turnCtx, "context must pass through unchanged")
	assert.NotNil(t, span)
	assert.False(t, span.IsRecording())

	nodeCtx, nodeSpan := sm.StartNodeSpan(ctx, "chat")
	assert.Equal(t, ctx, nodeCtx)
	assert.NotNil(t, nodeSpan)

	sm.EndSpanWithError(span, errors.New("err"))
	sm.EndSpanWithError(nodeSpan, nil)
	sm.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	// Must not panic
	EndSpanWithError(nil, errors.New("err"))
	EndSpanWithError(nil, nil)
}
