package r2r

import (
	"context"
	"net/http"
	"net/url"
)

// CreateConversation creates a conversation and returns it.
func (c *Client) CreateConversation(ctx context.Context, name string) (*Conversation, error) {
	c.logger.Info("CreateConversation called", "name", name)

	var in interface{}
	if name != "" {
		in = map[string]string{"name": name}
	}
	var out Conversation
	if _, err := c.doJSON(ctx, "conversations.create", http.MethodPost, "/v3/conversations", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns a page of conversations, optionally restricted to ids.
func (c *Client) ListConversations(ctx context.Context, ids []string, offset, limit int) (*Page[Conversation], error) {
	var out []Conversation
	total, err := c.doJSON(ctx, "conversations.list", http.MethodGet, "/v3/conversations", pageQuery(ids, offset, limit), nil, &out)
	if err != nil {
		return nil, err
	}
	return &Page[Conversation]{Items: out, Total: total}, nil
}

// GetConversation returns the messages of a conversation as stored by the service.
func (c *Client) GetConversation(ctx context.Context, id string) ([]MessageEntry, error) {
	var out []MessageEntry
	if _, err := c.doJSON(ctx, "conversations.retrieve", http.MethodGet, "/v3/conversations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMessage appends a message to a conversation and returns the stored entry.
func (c *Client) AddMessage(ctx context.Context, conversationID string, req AddMessageRequest) (*MessageEntry, error) {
	c.logger.Info("AddMessage called", "conversation_id", conversationID, "role", req.Role, "content_len", len(req.Content))

	var out MessageEntry
	path := "/v3/conversations/" + url.PathEscape(conversationID) + "/messages"
	if _, err := c.doJSON(ctx, "conversations.add_message", http.MethodPost, path, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation deletes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	c.logger.Info("DeleteConversation called", "conversation_id", id)

	_, err := c.doJSON(ctx, "conversations.delete", http.MethodDelete, "/v3/conversations/"+url.PathEscape(id), nil, nil, nil)
	return err
}
