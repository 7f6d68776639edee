package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/r2r"
	"github.com/aqua777/go-ragchat/rag/reader"
	"github.com/aqua777/go-ragchat/rag/store"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/settings"
	"github.com/aqua777/go-ragchat/textsplitter"
)

// Context builder defaults.
const (
	DefaultChunksPerDocument = 2
	DefaultContextSize       = 3
	DefaultSeed              = 42
	DefaultPollInterval      = 2 * time.Second
	DefaultPageSize          = 100
)

// documentNamespace seeds deterministic document ids.
var documentNamespace = uuid.MustParse("0b6f5a8e-3c1d-4f7a-9e2b-5d4c3b2a1f00")

// DocumentID returns the deterministic document id of a file.
func DocumentID(path string) string {
	return uuid.NewSHA1(documentNamespace, []byte(filepath.Base(path))).String()
}

// IngestMode selects how files reach the RAG service.
type IngestMode string

const (
	// IngestUpload sends the file and lets the server chunk it.
	IngestUpload IngestMode = "upload"
	// IngestChunks reads and splits the file locally and sends the chunks.
	IngestChunks IngestMode = "chunks"
)

// Corpus is the part of the RAG service the builder drives.
type Corpus interface {
	ListAllDocuments(ctx context.Context, pageSize int) ([]r2r.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CreateDocument(ctx context.Context, req r2r.CreateDocumentRequest) (*r2r.IngestionResponse, error)
	WaitForIngestion(ctx context.Context, ids []string, interval time.Duration) error
	ListAllChunks(ctx context.Context, documentID string, pageSize int) ([]r2r.Chunk, error)
}

// ContextBuilder turns a directory of documents into evaluation contexts:
// each context is a random seed chunk followed by its nearest chunks.
type ContextBuilder struct {
	corpus            Corpus
	embedModel        embedding.EmbeddingModel
	vectors           store.VectorStore
	mode              IngestMode
	extensions        []string
	chunkSize         int
	chunkOverlap      int
	chunksPerDocument int
	contextSize       int
	seed              int64
	pollInterval      time.Duration
	pageSize          int
	logger            *slog.Logger
}

// ContextBuilderOption configures a ContextBuilder.
type ContextBuilderOption func(*ContextBuilder)

// WithIngestMode sets the ingestion mode. Defaults to IngestUpload.
func WithIngestMode(mode IngestMode) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.mode = mode
	}
}

// WithFileExtensions restricts ingestion to these extensions.
func WithFileExtensions(exts ...string) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.extensions = exts
	}
}

// WithChunking sets the local chunk size and overlap used by IngestChunks.
func WithChunking(size, overlap int) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.chunkSize = size
		b.chunkOverlap = overlap
	}
}

// WithChunksPerDocument sets how many seed chunks are drawn from each document.
func WithChunksPerDocument(n int) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.chunksPerDocument = n
	}
}

// WithContextSize sets the number of texts in each context, seed included.
func WithContextSize(k int) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.contextSize = k
	}
}

// WithSeed sets the sampling seed.
func WithSeed(seed int64) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.seed = seed
	}
}

// WithPollInterval sets how often ingestion status is polled.
func WithPollInterval(d time.Duration) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.pollInterval = d
	}
}

// WithVectorStore sets the chunk embedding cache. Defaults to an in-memory store.
func WithVectorStore(vs store.VectorStore) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.vectors = vs
	}
}

// WithBuilderSettings applies chunking parameters from s.
func WithBuilderSettings(s *settings.Settings) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.chunkSize = s.ChunkSize
		b.chunkOverlap = s.ChunkOverlap
	}
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(logger *slog.Logger) ContextBuilderOption {
	return func(b *ContextBuilder) {
		b.logger = logger
	}
}

// NewContextBuilder creates a ContextBuilder.
func NewContextBuilder(corpus Corpus, embedModel embedding.EmbeddingModel, opts ...ContextBuilderOption) *ContextBuilder {
	b := &ContextBuilder{
		corpus:            corpus,
		embedModel:        embedModel,
		vectors:           store.NewSimpleVectorStore(),
		mode:              IngestUpload,
		extensions:        reader.DefaultExtensions,
		chunkSize:         settings.DefaultChunkSize,
		chunkOverlap:      settings.DefaultChunkOverlap,
		chunksPerDocument: DefaultChunksPerDocument,
		contextSize:       DefaultContextSize,
		seed:              DefaultSeed,
		pollInterval:      DefaultPollInterval,
		pageSize:          DefaultPageSize,
		logger:            slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type documentChunks struct {
	id     string
	chunks []r2r.Chunk
}

// Build purges the corpus, ingests the eligible files of dir and returns
// one context per sampled seed chunk.
func (b *ContextBuilder) Build(ctx context.Context, dir string) ([][]string, error) {
	const op = "dataset.build_contexts"

	if b.contextSize < 1 || b.chunksPerDocument < 1 {
		return nil, ragerr.Validation(op, "context size and chunks per document must be positive")
	}

	if err := b.Purge(ctx); err != nil {
		return nil, err
	}
	ids, err := b.Ingest(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ragerr.Validation(op, fmt.Sprintf("no eligible documents in %s", dir))
	}
	if err := b.corpus.WaitForIngestion(ctx, ids, b.pollInterval); err != nil {
		return nil, fmt.Errorf("ingestion did not complete: %w", err)
	}

	docs := make([]documentChunks, 0, len(ids))
	total := 0
	for _, id := range ids {
		chunks, err := b.corpus.ListAllChunks(ctx, id, b.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list chunks of %s: %w", id, err)
		}
		docs = append(docs, documentChunks{id: id, chunks: chunks})
		total += len(chunks)
	}
	if total < b.contextSize {
		return nil, ragerr.Validation(op, fmt.Sprintf("corpus has %d chunks, fewer than the context size %d", total, b.contextSize))
	}

	all := make([]r2r.Chunk, 0, total)
	for _, d := range docs {
		all = append(all, d.chunks...)
	}
	vectors, err := b.embedChunks(ctx, all)
	if err != nil {
		return nil, err
	}

	contexts, seeds, err := b.sample(docs, all, vectors)
	if err != nil {
		return nil, err
	}
	if err := CheckContexts(contexts, seeds, b.contextSize); err != nil {
		return nil, err
	}
	b.logger.Info("contexts built", "documents", len(docs), "chunks", total, "contexts", len(contexts))
	return contexts, nil
}

// Purge deletes every document of the corpus.
func (b *ContextBuilder) Purge(ctx context.Context) error {
	docs, err := b.corpus.ListAllDocuments(ctx, b.pageSize)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		if err := b.corpus.DeleteDocument(ctx, d.ID); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", d.ID, err)
		}
	}
	b.logger.Info("corpus purged", "documents", len(docs))
	return nil
}

// Ingest sends every eligible file of dir and returns the document ids in file order.
func (b *ContextBuilder) Ingest(ctx context.Context, dir string) ([]string, error) {
	files := reader.NewDirectoryReader(dir, reader.WithExtensions(b.extensions...))
	paths, err := files.EligibleFiles()
	if err != nil {
		return nil, err
	}

	var splitter *textsplitter.SentenceSplitter
	if b.mode == IngestChunks {
		splitter, err = textsplitter.NewSentenceSplitter(b.chunkSize, b.chunkOverlap)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		id := DocumentID(path)
		req := r2r.CreateDocumentRequest{
			ID:       id,
			Metadata: map[string]interface{}{"title": filepath.Base(path)},
		}

		switch b.mode {
		case IngestChunks:
			doc, err := files.LoadFile(path)
			if err != nil {
				return nil, err
			}
			req.Chunks = splitter.SplitText(doc.Text)
			if len(req.Chunks) == 0 {
				b.logger.Warn("skipping empty document", "file", path)
				continue
			}
		case IngestUpload:
			req.FilePath = path
		default:
			return nil, ragerr.Validation("dataset.ingest", fmt.Sprintf("unknown ingest mode %q", b.mode))
		}

		if _, err := b.corpus.CreateDocument(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// embedChunks returns one vector per chunk, reusing cached vectors whose text is unchanged.
func (b *ContextBuilder) embedChunks(ctx context.Context, chunks []r2r.Chunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))
	var missing []int
	for i, c := range chunks {
		entry, err := b.vectors.Get(ctx, c.ID)
		switch {
		case err == nil && entry.Text == c.Text:
			vectors[i] = entry.Embedding
		case err == nil || errors.Is(err, store.ErrNotFound):
			missing = append(missing, i)
		default:
			return nil, err
		}
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = chunks[i].Text
	}
	fresh, err := b.embedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	entries := make([]store.Entry, len(missing))
	for j, i := range missing {
		vectors[i] = fresh[j]
		entries[j] = store.Entry{
			ID:        chunks[i].ID,
			Text:      chunks[i].Text,
			Metadata:  map[string]string{"document_id": chunks[i].DocumentID},
			Embedding: fresh[j],
		}
	}
	if err := b.vectors.Add(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to cache chunk embeddings: %w", err)
	}
	b.logger.Info("chunks embedded", "embedded", len(missing), "cached", len(chunks)-len(missing))
	return vectors, nil
}

func (b *ContextBuilder) embedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if batch, ok := b.embedModel.(embedding.EmbeddingModelWithBatch); ok {
		return batch.GetTextEmbeddingsBatch(ctx, texts, nil)
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := b.embedModel.GetTextEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// sample draws seed chunks per document and attaches their nearest neighbours
// from the whole corpus. Ties keep corpus order.
func (b *ContextBuilder) sample(docs []documentChunks, all []r2r.Chunk, vectors [][]float64) ([][]string, []string, error) {
	rng := rand.New(rand.NewSource(b.seed))

	var contexts [][]string
	var seeds []string
	offset := 0
	for _, d := range docs {
		n := b.chunksPerDocument
		if n > len(d.chunks) {
			n = len(d.chunks)
		}
		for _, local := range rng.Perm(len(d.chunks))[:n] {
			seed := offset + local
			group, err := b.neighbours(seed, all, vectors)
			if err != nil {
				return nil, nil, err
			}
			seeds = append(seeds, all[seed].Text)
			contexts = append(contexts, group)
		}
		offset += len(d.chunks)
	}
	return contexts, seeds, nil
}

func (b *ContextBuilder) neighbours(seed int, all []r2r.Chunk, vectors [][]float64) ([]string, error) {
	others := make([]int, 0, len(all)-1)
	candidates := make([][]float64, 0, len(all)-1)
	for i := range all {
		if i == seed {
			continue
		}
		others = append(others, i)
		candidates = append(candidates, vectors[i])
	}

	out := []string{all[seed].Text}
	if b.contextSize < 2 {
		return out, nil
	}
	ranked, err := embedding.TopK(vectors[seed], candidates, b.contextSize-1, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to rank neighbours of chunk %s: %w", all[seed].ID, err)
	}
	for _, r := range ranked {
		out = append(out, all[others[r.Index]].Text)
	}
	return out, nil
}

// CheckContexts verifies that every context holds k texts and starts with its seed.
func CheckContexts(contexts [][]string, seeds []string, k int) error {
	const op = "dataset.check_contexts"
	if len(contexts) != len(seeds) {
		return ragerr.Validation(op, fmt.Sprintf("%d contexts for %d seeds", len(contexts), len(seeds)))
	}
	for i, c := range contexts {
		if len(c) != k {
			return ragerr.Validation(op, fmt.Sprintf("context %d has %d texts, want %d", i, len(c), k))
		}
		if c[0] != seeds[i] {
			return ragerr.Validation(op, fmt.Sprintf("context %d does not start with its seed chunk", i))
		}
	}
	return nil
}
