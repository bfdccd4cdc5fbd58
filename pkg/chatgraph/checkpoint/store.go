// Package checkpoint provides durable conversation state storage with
// optimistic concurrency control.
package checkpoint

import (
	"context"
	"errors"
)

// Store persists the latest conversation checkpoint, keyed by conversation ID.
// Implementations must be safe for concurrent use.
//
// Writes are guarded by a version counter: Save succeeds only when the
// caller's expectedVersion matches the stored version, so two writers
// performing a load-mutate-save cycle on the same conversation cannot
// silently lose an update.
type Store interface {
	// Load retrieves the latest checkpoint and its version.
	// Returns ErrNotFound if no checkpoint exists for the conversation.
	Load(ctx context.Context, conversationID string) (data []byte, version int64, err error)

	// Save stores a checkpoint, replacing any previous one.
	// expectedVersion must be 0 to create a new conversation, or the
	// version returned by the preceding Load/Save. Returns the new version,
	// or ErrVersionConflict if another writer got there first.
	Save(ctx context.Context, conversationID string, data []byte, expectedVersion int64) (int64, error)

	// Delete removes the checkpoint for a conversation.
	// Returns nil if no checkpoint exists.
	Delete(ctx context.Context, conversationID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the conversation.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict indicates a concurrent writer updated the
	// conversation between the caller's load and save.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)
