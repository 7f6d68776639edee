package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aqua777/go-ragchat/r2r"
)

// MockRetriever is a Retriever for testing. Streams replay Deltas as message
// events followed by a done event; StreamErr, when set, breaks the stream
// after the deltas instead. Truncated ends the body without a done event.
type MockRetriever struct {
	mu sync.Mutex

	Response  *r2r.RAGResponse
	Responses map[string]*r2r.RAGResponse
	Deltas    []string
	Err       error
	StreamErr error
	Truncated bool

	Requests []r2r.RAGRequest
}

// RAG records the request and returns the canned response for its query,
// falling back to Response.
func (m *MockRetriever) RAG(ctx context.Context, req r2r.RAGRequest) (*r2r.RAGResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if resp, ok := m.Responses[req.Query]; ok {
		return resp, nil
	}
	if m.Response == nil {
		return &r2r.RAGResponse{}, nil
	}
	return m.Response, nil
}

// RAGStream records the request and replays Deltas.
func (m *MockRetriever) RAGStream(ctx context.Context, req r2r.RAGRequest) (*r2r.EventStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}

	body := SSEBody(m.Deltas, m.StreamErr == nil && !m.Truncated)
	var r io.Reader = strings.NewReader(body)
	if m.StreamErr != nil {
		r = io.MultiReader(r, errReader{m.StreamErr})
	}
	return r2r.NewEventStream(ctx, io.NopCloser(r)), nil
}

// RequestCount returns the number of calls made.
func (m *MockRetriever) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// SSEBody renders deltas as a server-sent event stream with a leading
// search_results event, optionally terminated by a done event.
func SSEBody(deltas []string, done bool) string {
	var sb strings.Builder
	sb.WriteString("event: search_results\ndata: {\"chunk_search_results\":[]}\n\n")
	for _, d := range deltas {
		payload := map[string]interface{}{
			"delta": map[string]interface{}{
				"content": []interface{}{
					map[string]interface{}{
						"type":    "text",
						"payload": map[string]interface{}{"type": "text", "value": d},
					},
				},
			},
		}
		b, _ := json.Marshal(payload)
		fmt.Fprintf(&sb, "event: message\ndata: %s\n\n", b)
	}
	if done {
		sb.WriteString("event: done\ndata: {}\n\n")
	}
	return sb.String()
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

var _ Retriever = (*MockRetriever)(nil)
