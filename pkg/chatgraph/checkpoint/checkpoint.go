package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// FormatVersion is the current checkpoint envelope version.
// Increment when making breaking changes to the envelope structure.
// Readers ignore unknown fields, so adding optional fields does not
// require a bump.
const FormatVersion = 1

// ErrFormatVersion indicates the checkpoint was written by an
// incompatible (newer) release.
var ErrFormatVersion = fmt.Errorf("unsupported checkpoint format version")

// Checkpoint is the persisted envelope around serialized conversation state.
type Checkpoint struct {
	// Metadata
	Version        int       `json:"version"`
	ConversationID string    `json:"conversation_id"`
	Turn           int       `json:"turn"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`

	// State is the serialized conversation state.
	State json.RawMessage `json:"state"`
}

// New creates a checkpoint for the given conversation.
// State must already be JSON-serialized.
func New(conversationID string, turn int, status string, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:        FormatVersion,
		ConversationID: conversationID,
		Turn:           turn,
		Status:         status,
		Timestamp:      time.Now().UTC(),
		State:          state,
	}
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
// Checkpoints written by a newer format version are rejected; older
// versions are accepted since fields are only ever added.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, supported up to %d",
			ErrFormatVersion, c.Version, FormatVersion)
	}
	return &c, nil
}
