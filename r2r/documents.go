package r2r

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aqua777/go-ragchat/ragerr"
)

// CreateDocument ingests a file or a list of pre-split chunks.
func (c *Client) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*IngestionResponse, error) {
	const op = "documents.create"

	if req.FilePath == "" && len(req.Chunks) == 0 {
		return nil, ragerr.Validation(op, "either a file path or chunks are required")
	}
	c.logger.Info("CreateDocument called", "file", req.FilePath, "chunks", len(req.Chunks), "id", req.ID)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if req.FilePath != "" {
		f, err := os.Open(req.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", req.FilePath, err)
		}
		defer f.Close()

		part, err := w.CreateFormFile("file", filepath.Base(req.FilePath))
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", req.FilePath, err)
		}
	} else {
		chunks, err := json.Marshal(req.Chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chunks: %w", err)
		}
		if err := w.WriteField("chunks", string(chunks)); err != nil {
			return nil, err
		}
	}

	if req.ID != "" {
		if err := w.WriteField("id", req.ID); err != nil {
			return nil, err
		}
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(meta)); err != nil {
			return nil, err
		}
	}
	if req.IngestionMode != "" {
		if err := w.WriteField("ingestion_mode", string(req.IngestionMode)); err != nil {
			return nil, err
		}
	}
	if req.RunWithOrchestration != nil {
		if err := w.WriteField("run_with_orchestration", strconv.FormatBool(*req.RunWithOrchestration)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	resp, err := c.send(ctx, c.httpClient, op, http.MethodPost, "/v3/documents", nil, w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out IngestionResponse
	if _, err := decodeEnvelope(op, resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDocuments returns a page of documents, optionally restricted to ids.
func (c *Client) ListDocuments(ctx context.Context, ids []string, offset, limit int) (*Page[Document], error) {
	var out []Document
	total, err := c.doJSON(ctx, "documents.list", http.MethodGet, "/v3/documents", pageQuery(ids, offset, limit), nil, &out)
	if err != nil {
		return nil, err
	}
	return &Page[Document]{Items: out, Total: total}, nil
}

// ListAllDocuments pages through every document.
func (c *Client) ListAllDocuments(ctx context.Context, pageSize int) ([]Document, error) {
	return collectPages(func(offset int) (*Page[Document], error) {
		return c.ListDocuments(ctx, nil, offset, pageSize)
	})
}

// GetDocument returns a single document overview.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var out Document
	if _, err := c.doJSON(ctx, "documents.retrieve", http.MethodGet, "/v3/documents/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDocument deletes a document and its chunks.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	c.logger.Info("DeleteDocument called", "id", id)

	_, err := c.doJSON(ctx, "documents.delete", http.MethodDelete, "/v3/documents/"+url.PathEscape(id), nil, nil, nil)
	return err
}

// ListChunks returns a page of the chunks of a document.
func (c *Client) ListChunks(ctx context.Context, documentID string, includeVectors bool, offset, limit int) (*Page[Chunk], error) {
	q := pageQuery(nil, offset, limit)
	q.Set("include_vectors", strconv.FormatBool(includeVectors))

	var out []Chunk
	path := "/v3/documents/" + url.PathEscape(documentID) + "/chunks"
	total, err := c.doJSON(ctx, "documents.list_chunks", http.MethodGet, path, q, nil, &out)
	if err != nil {
		return nil, err
	}
	return &Page[Chunk]{Items: out, Total: total}, nil
}

// ListAllChunks pages through every chunk of a document.
func (c *Client) ListAllChunks(ctx context.Context, documentID string, pageSize int) ([]Chunk, error) {
	return collectPages(func(offset int) (*Page[Chunk], error) {
		return c.ListChunks(ctx, documentID, false, offset, pageSize)
	})
}

// DownloadZip writes a zip archive of the selected documents to outputPath.
// Zero dates are omitted.
func (c *Client) DownloadZip(ctx context.Context, ids []string, start, end time.Time, outputPath string) error {
	q := url.Values{}
	for _, id := range ids {
		q.Add("document_ids", id)
	}
	if !start.IsZero() {
		q.Set("start_date", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end_date", end.Format(time.RFC3339))
	}

	resp, err := c.send(ctx, c.httpClient, "documents.download_zip", http.MethodGet, "/v3/documents/download_zip", q, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return writeBody(resp.Body, outputPath)
}

// Export writes a CSV export of document metadata to outputPath.
func (c *Client) Export(ctx context.Context, req ExportRequest, outputPath string) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	resp, err := c.send(ctx, c.httpClient, "documents.export", http.MethodPost, "/v3/documents/export", nil, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return writeBody(resp.Body, outputPath)
}

// WaitForIngestion polls until every document reaches success.
// A failed document aborts with an Upstream error.
func (c *Client) WaitForIngestion(ctx context.Context, ids []string, interval time.Duration) error {
	const op = "documents.wait"
	if len(ids) == 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		docs, err := c.ListDocuments(ctx, ids, 0, len(ids))
		if err != nil {
			return err
		}
		done := 0
		for _, d := range docs.Items {
			switch d.IngestionStatus {
			case IngestionSuccess:
				done++
			case IngestionFailed:
				return ragerr.Upstream(op, 0, fmt.Sprintf("ingestion of document %s failed", d.ID))
			}
		}
		if done == len(ids) {
			return nil
		}
		c.logger.Info("Waiting for ingestion", "done", done, "total", len(ids))

		select {
		case <-ctx.Done():
			return ragerr.FromTransport(op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func collectPages[T any](fetch func(offset int) (*Page[T], error)) ([]T, error) {
	var all []T
	for {
		page, err := fetch(len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) == 0 || len(all) >= page.Total {
			return all, nil
		}
	}
}

func writeBody(r io.Reader, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return f.Close()
}
