// Package chatengine runs history-aware conversational turns against the RAG service.
package chatengine

import (
	"github.com/aqua777/go-ragchat/memory"
	"github.com/aqua777/go-ragchat/rag"
)

// Session is the per-conversation state threaded through every turn.
// It is not safe for concurrent turns.
type Session struct {
	// ConversationID is created on the first turn when empty.
	ConversationID string
	// ParentID is the id of the last persisted message.
	ParentID string
	// Name is used when the conversation is created lazily.
	Name string
	// TaskPrompt names the task prompt; the engine's selected prompt is used when empty.
	TaskPrompt string
	// Generation overrides the engine's generation parameters for this session.
	Generation []rag.InvokerOption
}

// ChatResponse is the outcome of one turn.
type ChatResponse struct {
	ConversationID string
	// UserMessageID is always set once the user turn is persisted.
	UserMessageID string
	// AssistantMessageID is empty when no answer was persisted.
	AssistantMessageID string
	Response           string
	Query              *memory.EnhancedQuery
	Selected           []memory.ScoredMessage
}

// String returns the response text.
func (r *ChatResponse) String() string {
	return r.Response
}
