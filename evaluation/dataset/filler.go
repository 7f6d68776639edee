package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/rag"
	"github.com/aqua777/go-ragchat/ragerr"
)

// Filler replays goldens through the RAG service and records the answers
// and retrieved chunks.
type Filler struct {
	invoker     *rag.Invoker
	taskPrompt  string
	postProcess *llm.PostProcessorRegistry
	logger      *slog.Logger
}

// FillerOption configures a Filler.
type FillerOption func(*Filler)

// WithTaskPrompt overrides the task prompt sent with each query.
func WithTaskPrompt(template string) FillerOption {
	return func(f *Filler) {
		f.taskPrompt = template
	}
}

// WithFillerPostProcessors sets the registry used to clean answers.
func WithFillerPostProcessors(r *llm.PostProcessorRegistry) FillerOption {
	return func(f *Filler) {
		f.postProcess = r
	}
}

// WithFillerLogger sets the logger.
func WithFillerLogger(logger *slog.Logger) FillerOption {
	return func(f *Filler) {
		f.logger = logger
	}
}

// NewFiller creates a Filler. Answers are requested with the strict
// context-only evaluation prompt unless WithTaskPrompt is given.
func NewFiller(invoker *rag.Invoker, opts ...FillerOption) *Filler {
	f := &Filler{
		invoker:     invoker,
		taskPrompt:  prompts.EvalRAGTemplate,
		postProcess: llm.NewPostProcessorRegistry(),
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fill returns augmented copies of samples. The first failing sample stops
// the run and no partial result is returned.
func (f *Filler) Fill(ctx context.Context, samples []*evaluation.Sample) ([]*evaluation.Sample, error) {
	clean := f.postProcess.For(f.invoker.Model())

	out := make([]*evaluation.Sample, 0, len(samples))
	for i, s := range samples {
		if strings.TrimSpace(s.Input) == "" {
			return nil, ragerr.Validation("dataset.fill", fmt.Sprintf("sample %d has no input", i))
		}
		resp, err := f.invoker.Complete(ctx, s.Input, f.taskPrompt)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}

		filled := *s
		filled.ActualOutput = strings.TrimSpace(clean(resp.Answer()))
		filled.RetrievedContext = resp.ChunkTexts()
		filled.Scores = nil
		filled.EnsureID()
		out = append(out, &filled)

		f.logger.Info("sample filled", "index", i, "total", len(samples), "retrieved", len(filled.RetrievedContext))
	}
	return out, nil
}

// FillFile reads goldens from in and writes the augmented samples to out.
// out is only written when every sample succeeded.
func (f *Filler) FillFile(ctx context.Context, in, out string) (int, error) {
	samples, err := ReadSamples(in)
	if err != nil {
		return 0, err
	}
	filled, err := f.Fill(ctx, samples)
	if err != nil {
		return 0, err
	}
	if err := WriteSamples(out, filled); err != nil {
		return 0, err
	}
	return len(filled), nil
}
