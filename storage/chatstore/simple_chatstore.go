package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/ragerr"
)

const (
	// DefaultPersistDir is the default directory for persistence.
	DefaultPersistDir = "./storage"
	// DefaultPersistFilename is the default filename for persistence.
	DefaultPersistFilename = "chat_store.json"
)

type simpleConversation struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// SimpleChatStore is an in-memory MessageStore with optional persistence to a JSON file.
type SimpleChatStore struct {
	cfg   storeConfig
	mu    sync.RWMutex
	store map[string]*simpleConversation
}

// NewSimpleChatStore creates a new SimpleChatStore.
func NewSimpleChatStore(opts ...Option) *SimpleChatStore {
	return &SimpleChatStore{
		cfg:   newStoreConfig(opts),
		store: make(map[string]*simpleConversation),
	}
}

// CreateConversation creates an empty conversation.
func (s *SimpleChatStore) CreateConversation(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.store[id] = &simpleConversation{
		Conversation: Conversation{ID: id, Name: name, CreatedAt: s.cfg.now().UTC()},
	}
	return id, nil
}

// ListConversations returns conversations ordered by creation time, oldest first.
func (s *SimpleChatStore) ListConversations(ctx context.Context, ids []string, offset, limit int) (*ConversationPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []Conversation
	if len(ids) > 0 {
		for _, id := range ids {
			if c, ok := s.store[id]; ok {
				all = append(all, c.Conversation)
			}
		}
	} else {
		for _, c := range s.store {
			all = append(all, c.Conversation)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	page := &ConversationPage{Total: len(all)}
	if offset < len(all) {
		end := len(all)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		page.Conversations = append(page.Conversations, all[offset:end]...)
	}
	return page, nil
}

// Retrieve returns the messages of a conversation in chain order.
func (s *SimpleChatStore) Retrieve(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.store[conversationID]
	if !ok {
		return nil, ragerr.NotFound("chatstore.retrieve", "conversation "+conversationID)
	}
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = cloneMessage(m)
	}
	return OrderChain(out)
}

// Append adds a message. parentID must be the latest message of the conversation,
// or empty when the conversation has no messages yet.
func (s *SimpleChatStore) Append(ctx context.Context, conversationID string, role llm.MessageRole, content string, vector []float64, parentID string) (string, error) {
	const op = "chatstore.append"

	if err := checkAppend(op, role, content, vector, s.cfg.dimension); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.store[conversationID]
	if !ok {
		return "", ragerr.NotFound(op, "conversation "+conversationID)
	}
	last := ""
	if n := len(c.Messages); n > 0 {
		last = c.Messages[n-1].ID
	}
	if parentID != last {
		return "", ragerr.Validation(op, fmt.Sprintf("parent %q is not the latest message %q", parentID, last))
	}

	msg := cloneMessage(Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		ParentID:       parentID,
		Role:           role,
		Content:        content,
		Embedding:      vector,
		CreatedAt:      s.cfg.now().UTC(),
	})
	c.Messages = append(c.Messages, msg)
	return msg.ID, nil
}

// Delete removes a conversation.
func (s *SimpleChatStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.store[conversationID]; !ok {
		return ragerr.NotFound("chatstore.delete", "conversation "+conversationID)
	}
	delete(s.store, conversationID)
	return nil
}

// Persist saves the chat store to disk.
func (s *SimpleChatStore) Persist(ctx context.Context, persistPath string) error {
	if persistPath == "" {
		persistPath = filepath.Join(DefaultPersistDir, DefaultPersistFilename)
	}

	dirPath := filepath.Dir(persistPath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}

	s.mu.RLock()
	jsonData, err := json.MarshalIndent(s.store, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal chat store: %w", err)
	}

	return renameio.WriteFile(persistPath, jsonData, 0644)
}

// SimpleChatStoreFromPersistPath loads a SimpleChatStore from a persist path.
// A missing file yields an empty store.
func SimpleChatStoreFromPersistPath(ctx context.Context, persistPath string, opts ...Option) (*SimpleChatStore, error) {
	if persistPath == "" {
		persistPath = filepath.Join(DefaultPersistDir, DefaultPersistFilename)
	}

	store := NewSimpleChatStore(opts...)

	data, err := os.ReadFile(persistPath)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &store.store); err != nil {
		return nil, ragerr.Wrap(ragerr.KindValidation, "chatstore.load", fmt.Errorf("failed to parse %s: %w", persistPath, err))
	}
	if store.store == nil {
		store.store = make(map[string]*simpleConversation)
	}
	return store, nil
}

func checkAppend(op string, role llm.MessageRole, content string, vector []float64, dim int) error {
	if !role.Valid() {
		return ragerr.Validation(op, fmt.Sprintf("invalid role %q", role))
	}
	if strings.TrimSpace(content) == "" {
		return ragerr.Validation(op, "message content is empty")
	}
	if err := embedding.CheckVector(vector, dim); err != nil {
		return ragerr.Wrap(ragerr.KindValidation, op, err)
	}
	return nil
}

var _ MessageStore = (*SimpleChatStore)(nil)
