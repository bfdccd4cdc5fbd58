// Package llm abstracts language model providers behind a common
// completion interface, and layers retry, fallback, and circuit-breaking
// on top of it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client is a single model provider.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete issues one completion call and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream issues one completion call and delivers output incrementally.
	// The returned channel is closed after the final chunk (Done=true) or
	// after a chunk carrying a non-nil Error.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// Invoker is the model-call capability the graph executor consumes.
// FallbackClient is the standard implementation; tests substitute fakes.
type Invoker interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStream behaves like Complete but forwards incremental output
	// to sink. The assembled response is returned exactly once regardless
	// of how many chunks were delivered. A retried attempt resets the sink
	// first, so partial output is never duplicated.
	CompleteStream(ctx context.Context, req CompletionRequest, sink Sink) (*CompletionResponse, error)
}

// Sink receives incremental output from a streaming model call.
type Sink interface {
	// Write delivers one chunk, in generation order.
	Write(ctx context.Context, chunk StreamChunk) error

	// Reset discards anything delivered so far. Called before a retried
	// attempt starts a fresh stream.
	Reset()
}

// CompletionRequest configures a model completion call.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	Tools []Tool `json:"tools,omitempty"`
}

// Message is a conversation turn.
// A message is immutable once appended to a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls carries tool invocation requests on assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ToolMessage builds a tool-role message answering the given call.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Tool declares an available tool for the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content      string        `json:"content"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	Usage        TokenUsage    `json:"usage"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Duration     time.Duration `json:"duration"`
}

// Message converts the response into an assistant-role conversation message.
func (r *CompletionResponse) Message() Message {
	return Message{
		Role:      RoleAssistant,
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
	}
}

// HasToolCalls reports whether the model requested at least one tool call.
func (r *CompletionResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolCall represents a tool invocation request from the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// StreamChunk is a piece of a streaming response.
type StreamChunk struct {
	Content   string      `json:"content,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"` // Only set in final chunk
	Done      bool        `json:"done"`
	Error     error       `json:"-"` // Non-nil if streaming failed
}

// Error wraps a provider failure with the operation and retryability.
type Error struct {
	// Op is the operation that failed ("complete", "stream").
	Op string
	// Provider identifies the model provider.
	Provider string
	// Err is the underlying error.
	Err error
	// Retryable indicates whether retrying the same provider may help.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm %s (%s): %v", e.Op, e.Provider, e.Err)
	}
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a provider error.
func NewError(op, provider string, err error, retryable bool) *Error {
	return &Error{Op: op, Provider: provider, Err: err, Retryable: retryable}
}

// IsRetryable reports whether the error is a transient provider failure.
// Errors that don't carry retryability information are not retried.
func IsRetryable(err error) bool {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// CandidateError records why one fallback candidate failed.
type CandidateError struct {
	Provider string
	Model    string
	Err      error
}

// Error implements the error interface.
func (e *CandidateError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Provider, e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *CandidateError) Unwrap() error {
	return e.Err
}

// UnavailableError indicates every fallback candidate was exhausted.
type UnavailableError struct {
	// Failures holds one entry per attempted candidate, in fallback order.
	Failures []*CandidateError
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if len(e.Failures) == 0 {
		return "no model candidates configured"
	}
	msg := "all model candidates exhausted:"
	for _, f := range e.Failures {
		msg += " [" + f.Error() + "]"
	}
	return msg
}
