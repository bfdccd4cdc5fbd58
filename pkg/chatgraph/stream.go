package chatgraph

import (
	"context"
	"strings"
	"sync"

	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
)

// Sink receives incremental model output during a turn.
// A retried model attempt resets the sink, so consumers only ever
// observe one attempt's output.
type Sink = llm.Sink

// StreamChunk is a piece of streamed model output.
type StreamChunk = llm.StreamChunk

// BufferSink accumulates streamed content in memory.
// Safe for concurrent use.
type BufferSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Write implements Sink.
func (s *BufferSink) Write(_ context.Context, chunk llm.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(chunk.Content)
	return nil
}

// Reset implements Sink.
func (s *BufferSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

// String returns the content accumulated since the last reset.
func (s *BufferSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// funcSink adapts a callback into a Sink.
type funcSink struct {
	write func(ctx context.Context, chunk llm.StreamChunk) error
	reset func()
}

// SinkFuncs builds a Sink from callbacks. The reset callback may be nil
// when the consumer has nothing to unwind.
func SinkFuncs(write func(ctx context.Context, chunk llm.StreamChunk) error, reset func()) Sink {
	return &funcSink{write: write, reset: reset}
}

func (s *funcSink) Write(ctx context.Context, chunk llm.StreamChunk) error {
	return s.write(ctx, chunk)
}

func (s *funcSink) Reset() {
	if s.reset != nil {
		s.reset()
	}
}
