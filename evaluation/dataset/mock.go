package dataset

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/ragerr"
)

// MockCorpus is an in-memory Corpus for testing. Uploaded files are split
// into one chunk per blank-line separated paragraph; chunk ids are derived
// from the document id and position.
type MockCorpus struct {
	mu sync.Mutex

	Documents     []r2r.Document
	Chunks        map[string][]r2r.Chunk
	FailIngestion bool

	Deleted []string
	Created []r2r.CreateDocumentRequest
	Waited  []string
}

// NewMockCorpus creates a corpus holding docs.
func NewMockCorpus(docs ...r2r.Document) *MockCorpus {
	return &MockCorpus{Documents: docs, Chunks: make(map[string][]r2r.Chunk)}
}

func (m *MockCorpus) ListAllDocuments(ctx context.Context, pageSize int) ([]r2r.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]r2r.Document(nil), m.Documents...), nil
}

func (m *MockCorpus) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.Documents {
		if d.ID == id {
			m.Documents = append(m.Documents[:i], m.Documents[i+1:]...)
			delete(m.Chunks, id)
			m.Deleted = append(m.Deleted, id)
			return nil
		}
	}
	return ragerr.NotFound("documents.delete", id)
}

func (m *MockCorpus) CreateDocument(ctx context.Context, req r2r.CreateDocumentRequest) (*r2r.IngestionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	texts := req.Chunks
	if req.FilePath != "" {
		data, err := os.ReadFile(req.FilePath)
		if err != nil {
			return nil, err
		}
		for _, p := range strings.Split(string(data), "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				texts = append(texts, p)
			}
		}
	}

	chunks := make([]r2r.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = r2r.Chunk{ID: fmt.Sprintf("%s-%d", req.ID, i), DocumentID: req.ID, Text: t}
	}
	m.Chunks[req.ID] = chunks
	m.Documents = append(m.Documents, r2r.Document{ID: req.ID, IngestionStatus: r2r.IngestionPending})
	m.Created = append(m.Created, req)
	return &r2r.IngestionResponse{DocumentID: req.ID, Message: "queued"}, nil
}

func (m *MockCorpus) WaitForIngestion(ctx context.Context, ids []string, interval time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Waited = append(m.Waited, ids...)
	if m.FailIngestion {
		return ragerr.Upstream("documents.wait", 0, "ingestion failed")
	}
	for i := range m.Documents {
		m.Documents[i].IngestionStatus = r2r.IngestionSuccess
	}
	return nil
}

func (m *MockCorpus) ListAllChunks(ctx context.Context, documentID string, pageSize int) ([]r2r.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks, ok := m.Chunks[documentID]
	if !ok {
		return nil, ragerr.NotFound("documents.chunks", documentID)
	}
	return append([]r2r.Chunk(nil), chunks...), nil
}

var _ Corpus = (*MockCorpus)(nil)
