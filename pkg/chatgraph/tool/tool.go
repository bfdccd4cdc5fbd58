// Package tool manages the tools a conversation can invoke: registration,
// JSON Schema validation of model-supplied arguments, and isolated
// execution of individual calls.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
)

// DefaultTimeout bounds a single tool call unless the spec overrides it.
const DefaultTimeout = 30 * time.Second

// Handler executes a tool call. Arguments have already passed schema
// validation. The returned string is fed back to the model verbatim.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Spec describes one registered tool.
type Spec struct {
	// Name is the identifier the model uses to invoke the tool.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// InputSchema validates arguments before the handler runs.
	// A nil schema accepts any JSON object.
	InputSchema *jsonschema.Schema

	// Handler performs the actual work.
	Handler Handler

	// Timeout bounds one call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// SchemaFor derives a JSON Schema from a Go struct type, honoring
// `json` and `jsonschema` struct tags.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	return jsonschema.For[T](nil)
}

// Result is the outcome of one tool call.
//
// Failures are results, not errors: a failed call produces an IsError
// result whose content describes the failure, so the model can react to
// it in the next turn.
type Result struct {
	CallID   string
	Name     string
	Content  string
	IsError  bool
	Duration time.Duration
}

// Message converts the result into a tool-role conversation message.
func (r Result) Message() llm.Message {
	return llm.ToolMessage(r.CallID, r.Content)
}

// errorResult builds a failure result for the given call.
func errorResult(call llm.ToolCall, format string, args ...any) Result {
	return Result{
		CallID:  call.ID,
		Name:    call.Name,
		Content: fmt.Sprintf(format, args...),
		IsError: true,
	}
}
