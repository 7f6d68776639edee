package r2r

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// RAG runs a non-streaming retrieval-augmented generation.
func (c *Client) RAG(ctx context.Context, req RAGRequest) (*RAGResponse, error) {
	c.logger.Info("RAG called", "query_len", len(req.Query), "model", req.GenerationConfig.Model, "limit", req.SearchSettings.Limit)

	req.GenerationConfig.Stream = false
	var out RAGResponse
	if _, err := c.doJSON(ctx, "retrieval.rag", http.MethodPost, "/v3/retrieval/rag", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RAGStream runs a streaming retrieval-augmented generation.
// The caller must Close the returned stream.
func (c *Client) RAGStream(ctx context.Context, req RAGRequest) (*EventStream, error) {
	const op = "retrieval.rag_stream"
	c.logger.Info("RAGStream called", "query_len", len(req.Query), "model", req.GenerationConfig.Model, "limit", req.SearchSettings.Limit)

	req.GenerationConfig.Stream = true
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.send(ctx, c.httpClient, op, http.MethodPost, "/v3/retrieval/rag", nil, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return NewEventStream(ctx, resp.Body), nil
}
