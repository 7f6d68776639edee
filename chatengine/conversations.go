package chatengine

import (
	"context"

	"github.com/aqua777/go-ragchat/storage/chatstore"
)

// NewConversation creates a conversation and returns a session positioned at its start.
func NewConversation(ctx context.Context, store chatstore.MessageStore, name string) (*Session, error) {
	id, err := store.CreateConversation(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Session{ConversationID: id, Name: name}, nil
}

// Resume returns a session that continues conversationID after its last message.
func Resume(ctx context.Context, store chatstore.MessageStore, conversationID string) (*Session, error) {
	messages, err := store.Retrieve(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s := &Session{ConversationID: conversationID}
	if len(messages) > 0 {
		s.ParentID = messages[len(messages)-1].ID
	}
	return s, nil
}

// ListConversations returns a page of conversations.
func ListConversations(ctx context.Context, store chatstore.MessageStore, offset, limit int) (*chatstore.ConversationPage, error) {
	return store.ListConversations(ctx, nil, offset, limit)
}

// DeleteConversation removes a conversation. When session points at it the session is reset.
func DeleteConversation(ctx context.Context, store chatstore.MessageStore, conversationID string, session *Session) error {
	if err := store.Delete(ctx, conversationID); err != nil {
		return err
	}
	if session != nil && session.ConversationID == conversationID {
		session.ConversationID = ""
		session.ParentID = ""
	}
	return nil
}

// History returns the messages of a conversation in chain order.
func History(ctx context.Context, store chatstore.MessageStore, conversationID string) ([]chatstore.Message, error) {
	return store.Retrieve(ctx, conversationID)
}
