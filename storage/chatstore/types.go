// Package chatstore persists conversations as linear chains of messages,
// each carrying the embedding of its content.
package chatstore

import (
	"context"
	"time"

	"github.com/aqua777/go-ragchat/llm"
)

// Message is one persisted conversation turn. It is treated as immutable:
// stores copy it on the way in and on the way out.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	// ParentID is the id of the previous message in the chain, empty for the root.
	ParentID  string          `json:"parent_id,omitempty"`
	Role      llm.MessageRole `json:"role"`
	Content   string          `json:"content"`
	Embedding []float64       `json:"embedding"`
	CreatedAt time.Time       `json:"created_at"`
}

// Conversation is a conversation overview.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationPage is one page of a conversation listing.
type ConversationPage struct {
	Conversations []Conversation
	// Total is the number of conversations across all pages.
	Total int
}

// MessageStore is the interface for storing conversation history.
type MessageStore interface {
	// CreateConversation creates an empty conversation and returns its id.
	CreateConversation(ctx context.Context, name string) (string, error)

	// ListConversations returns a page of conversations, optionally restricted to ids.
	ListConversations(ctx context.Context, ids []string, offset, limit int) (*ConversationPage, error)

	// Retrieve returns the messages of a conversation in chain order, root first.
	// An unknown conversation is a NotFound error.
	Retrieve(ctx context.Context, conversationID string) ([]Message, error)

	// Append adds a message to a conversation and returns the new message id.
	// parentID is empty for the first message of a conversation.
	Append(ctx context.Context, conversationID string, role llm.MessageRole, content string, embedding []float64, parentID string) (string, error)

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, conversationID string) error
}

func cloneMessage(m Message) Message {
	if m.Embedding != nil {
		v := make([]float64, len(m.Embedding))
		copy(v, m.Embedding)
		m.Embedding = v
	}
	return m
}
