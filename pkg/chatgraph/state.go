package chatgraph

import (
	"github.com/assistkit/chatgraph/pkg/chatgraph/llm"
)

// Status is the lifecycle state of a conversation.
type Status string

// Conversation statuses. AwaitingToolResult and InProgress are
// intermediate; Completed and Failed are terminal for a turn.
const (
	StatusInProgress         Status = "in_progress"
	StatusAwaitingToolResult Status = "awaiting_tool_result"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

// ConversationState is the unit of persistence: everything needed to
// resume a conversation.
//
// Messages is append-only. Entries are never reordered or mutated in
// place, so insertion order is conversation order across reloads.
type ConversationState struct {
	ConversationID   string         `json:"conversation_id"`
	Messages         []llm.Message  `json:"messages"`
	PendingToolCalls []llm.ToolCall `json:"pending_tool_calls,omitempty"`
	TurnCount        int            `json:"turn_count"`
	Status           Status         `json:"status"`
}

// NewConversationState initializes state for a first-contact conversation.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Status:         StatusInProgress,
	}
}

// Append adds messages to the conversation log.
func (s *ConversationState) Append(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastAssistantMessage returns the most recent assistant-role message.
func (s *ConversationState) LastAssistantMessage() (llm.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return llm.Message{}, false
}

// HasSystemMessage reports whether a system-role message is present.
func (s *ConversationState) HasSystemMessage() bool {
	for _, m := range s.Messages {
		if m.Role == llm.RoleSystem {
			return true
		}
	}
	return false
}
