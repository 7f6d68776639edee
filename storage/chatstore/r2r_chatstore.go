package chatstore

import (
	"context"
	"fmt"

	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/ragerr"
)

// ConversationAPI is the subset of the RAG service client used by R2RChatStore.
type ConversationAPI interface {
	CreateConversation(ctx context.Context, name string) (*r2r.Conversation, error)
	ListConversations(ctx context.Context, ids []string, offset, limit int) (*r2r.Page[r2r.Conversation], error)
	GetConversation(ctx context.Context, id string) ([]r2r.MessageEntry, error)
	AddMessage(ctx context.Context, conversationID string, req r2r.AddMessageRequest) (*r2r.MessageEntry, error)
	DeleteConversation(ctx context.Context, id string) error
}

// R2RChatStore stores conversations in the RAG service. Embeddings travel as
// JSON strings in message metadata since the service does not accept raw vectors there.
type R2RChatStore struct {
	api   ConversationAPI
	cfg   storeConfig
	lists *listCache
}

// NewR2RChatStore creates a store over the given service client.
func NewR2RChatStore(api ConversationAPI, opts ...Option) *R2RChatStore {
	cfg := newStoreConfig(opts)
	return &R2RChatStore{
		api:   api,
		cfg:   cfg,
		lists: newListCache(cfg.listTTL),
	}
}

// CreateConversation creates a conversation on the service.
func (s *R2RChatStore) CreateConversation(ctx context.Context, name string) (string, error) {
	conv, err := s.api.CreateConversation(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	if conv.ID == "" {
		return "", ragerr.Upstream("chatstore.create", 0, "service returned a conversation without id")
	}
	s.lists.invalidate()
	s.cfg.logger.Info("Conversation created", "conversation_id", conv.ID)
	return conv.ID, nil
}

// ListConversations returns a page of conversations. Pages are cached for the list TTL.
func (s *R2RChatStore) ListConversations(ctx context.Context, ids []string, offset, limit int) (*ConversationPage, error) {
	key := listKey(ids, offset, limit)
	if page, ok := s.lists.get(key); ok {
		return page, nil
	}

	res, err := s.api.ListConversations(ctx, ids, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	page := &ConversationPage{Total: res.Total}
	for _, c := range res.Items {
		page.Conversations = append(page.Conversations, Conversation{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	s.lists.put(key, page)
	return page, nil
}

// Retrieve returns the messages of a conversation in chain order with decoded embeddings.
func (s *R2RChatStore) Retrieve(ctx context.Context, conversationID string) ([]Message, error) {
	entries, err := s.api.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve conversation %s: %w", conversationID, err)
	}

	messages := make([]Message, 0, len(entries))
	for _, e := range entries {
		m, err := fromEntry(conversationID, e)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return OrderChain(messages)
}

// Append adds a message with its embedding and chain link.
func (s *R2RChatStore) Append(ctx context.Context, conversationID string, role llm.MessageRole, content string, vector []float64, parentID string) (string, error) {
	const op = "chatstore.append"

	if err := checkAppend(op, role, content, vector, s.cfg.dimension); err != nil {
		return "", err
	}
	encoded, err := EncodeEmbedding(vector)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{MetadataEmbedding: encoded}
	if parentID != "" {
		metadata[MetadataParentID] = parentID
	}
	entry, err := s.api.AddMessage(ctx, conversationID, r2r.AddMessageRequest{
		Content:  content,
		Role:     string(role),
		ParentID: parentID,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to append %s message: %w", role, err)
	}
	if entry.ID == "" {
		return "", ragerr.Upstream(op, 0, "service returned a message without id")
	}
	return entry.ID, nil
}

// Delete deletes a conversation on the service.
func (s *R2RChatStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	s.lists.invalidate()
	return nil
}

func fromEntry(conversationID string, e r2r.MessageEntry) (Message, error) {
	m := Message{
		ID:             e.ID,
		ConversationID: conversationID,
		ParentID:       e.ParentID,
		Role:           llm.MessageRole(e.Message.Role),
		Content:        e.Message.Content,
	}
	if e.CreatedAt != nil {
		m.CreatedAt = *e.CreatedAt
	}
	if m.ParentID == "" {
		m.ParentID = metadataString(e, MetadataParentID)
	}

	raw := e.Metadata[MetadataEmbedding]
	if raw == nil {
		raw = e.Message.Metadata[MetadataEmbedding]
	}
	v, err := DecodeEmbedding(raw)
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", e.ID, err)
	}
	m.Embedding = v
	return m, nil
}

func metadataString(e r2r.MessageEntry, key string) string {
	if s, ok := e.Metadata[key].(string); ok {
		return s
	}
	if s, ok := e.Message.Metadata[key].(string); ok {
		return s
	}
	return ""
}

var _ MessageStore = (*R2RChatStore)(nil)
var _ ConversationAPI = (*r2r.Client)(nil)
