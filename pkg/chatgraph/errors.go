package chatgraph

import (
	"errors"
	"fmt"
)

// Validation errors returned before a turn is attempted.
var (
	// ErrNilContext is returned when a nil context is passed to Run.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrEmptyConversationID is returned when the conversation ID is empty.
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")

	// ErrEmptyUserMessage is returned when the user message is empty.
	ErrEmptyUserMessage = errors.New("user message cannot be empty")
)

// StorageError indicates the checkpoint store failed. The turn was not
// attempted (load failure) or not persisted (save failure); the caller
// should retry the whole turn later.
type StorageError struct {
	// ConversationID identifies the affected conversation.
	ConversationID string
	// Op is the storage operation that failed ("load", "save", "decode").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable (conversation %s, %s): %v", e.ConversationID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ModelUnavailableError indicates every model candidate was exhausted.
// State is persisted up to the last successful node, so the next attempt
// resumes rather than restarts.
type ModelUnavailableError struct {
	// ConversationID identifies the affected conversation.
	ConversationID string
	// Err is the underlying error, usually *llm.UnavailableError.
	Err error
}

// Error implements the error interface.
func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("model unavailable (conversation %s): %v", e.ConversationID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// LoopBoundError indicates the chat/tool cycle hit the configured bound.
// The conversation is persisted with status failed.
type LoopBoundError struct {
	// ConversationID identifies the affected conversation.
	ConversationID string
	// Bound is the configured maximum number of tool round-trips.
	Bound int
}

// Error implements the error interface.
func (e *LoopBoundError) Error() string {
	return fmt.Sprintf("conversation %s exceeded the tool round-trip bound of %d", e.ConversationID, e.Bound)
}

// ConflictError indicates a concurrent writer won the persist race.
// This attempt's changes are discarded; the caller should reload and
// retry.
type ConflictError struct {
	// ConversationID identifies the affected conversation.
	ConversationID string
	// Err wraps checkpoint.ErrVersionConflict.
	Err error
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent write detected for conversation %s: %v", e.ConversationID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConflictError) Unwrap() error {
	return e.Err
}
