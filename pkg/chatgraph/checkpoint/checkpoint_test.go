package checkpoint_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/assistkit/chatgraph/pkg/chatgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_New(t *testing.T) {
	state := []byte(`{"messages":[]}`)
	cp := checkpoint.New("conv-123", 2, "in_progress", state)

	assert.Equal(t, checkpoint.FormatVersion, cp.Version)
	assert.Equal(t, "conv-123", cp.ConversationID)
	assert.Equal(t, 2, cp.Turn)
	assert.Equal(t, "in_progress", cp.Status)
	assert.Equal(t, json.RawMessage(state), cp.State)
	assert.False(t, cp.Timestamp.IsZero())
}

func TestCheckpoint_MarshalUnmarshal(t *testing.T) {
	state := []byte(`{"turn_count":4}`)
	original := checkpoint.New("conv-123", 4, "completed", state)

	data, err := original.Marshal()
	require.NoError(t, err)

	loaded, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.Version, loaded.Version)
	assert.Equal(t, original.ConversationID, loaded.ConversationID)
	assert.Equal(t, original.Turn, loaded.Turn)
	assert.Equal(t, original.Status, loaded.Status)
	assert.JSONEq(t, string(original.State), string(loaded.State))
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestCheckpoint_UnmarshalInvalidJSON(t *testing.T) {
	_, err := checkpoint.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestCheckpoint_UnknownFieldsIgnored(t *testing.T) {
	// A checkpoint written by a same-version reader with extra optional
	// fields must still load.
	data := []byte(`{
		"version": 1,
		"conversation_id": "conv-1",
		"turn": 1,
		"status": "completed",
		"timestamp": "2026-01-01T00:00:00Z",
		"state": {"messages":[]},
		"some_future_field": true
	}`)

	cp, err := checkpoint.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", cp.ConversationID)
}

func TestCheckpoint_NewerFormatRejected(t *testing.T) {
	data := []byte(`{"version": 99, "conversation_id": "conv-1", "state": {}}`)

	_, err := checkpoint.Unmarshal(data)
	assert.ErrorIs(t, err, checkpoint.ErrFormatVersion)
}
