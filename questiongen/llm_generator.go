package questiongen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/evaluation/dataset"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
)

// DefaultSynthesisTemperature leaves the model room to vary its questions.
const DefaultSynthesisTemperature float32 = 0.7

// LLMQuestionGenerator asks an LLM, through the judge, for a question and its answer.
type LLMQuestionGenerator struct {
	*BaseQuestionGenerator
	judge       *evaluation.Judge
	template    *prompts.JudgeTemplate
	temperature float32
	logger      *slog.Logger
}

// LLMQuestionGeneratorOption configures an LLMQuestionGenerator.
type LLMQuestionGeneratorOption func(*LLMQuestionGenerator)

// WithQuestionGenTemplate sets the synthesis template. It must declare a
// "context" list input and return "input" and "expected_output".
func WithQuestionGenTemplate(t *prompts.JudgeTemplate) LLMQuestionGeneratorOption {
	return func(g *LLMQuestionGenerator) {
		g.template = t
	}
}

// WithQuestionGenTemperature sets the sampling temperature.
func WithQuestionGenTemperature(t float32) LLMQuestionGeneratorOption {
	return func(g *LLMQuestionGenerator) {
		g.temperature = t
	}
}

// WithQuestionGenLogger sets the logger.
func WithQuestionGenLogger(logger *slog.Logger) LLMQuestionGeneratorOption {
	return func(g *LLMQuestionGenerator) {
		g.logger = logger
	}
}

// NewLLMQuestionGenerator creates a new LLMQuestionGenerator.
func NewLLMQuestionGenerator(judge *evaluation.Judge, opts ...LLMQuestionGeneratorOption) *LLMQuestionGenerator {
	g := &LLMQuestionGenerator{
		BaseQuestionGenerator: NewBaseQuestionGenerator(WithGeneratorName("LLMQuestionGenerator")),
		judge:                 judge,
		template:              prompts.GoldenSynthesisTemplate,
		temperature:           DefaultSynthesisTemperature,
		logger:                slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate writes a golden grounded in passages.
func (g *LLMQuestionGenerator) Generate(ctx context.Context, passages []string) (*evaluation.Sample, error) {
	if len(passages) == 0 {
		return nil, ragerr.Validation("questiongen.generate", "context is empty")
	}
	out, err := g.judge.Evaluate(ctx, g.template, map[string]interface{}{"context": passages}, g.temperature, requireText("input", "expected_output"))
	if err != nil {
		return nil, err
	}

	s := &evaluation.Sample{
		Input:            strings.TrimSpace(out["input"].(string)),
		Reference:        strings.TrimSpace(out["expected_output"].(string)),
		ReferenceContext: append([]string(nil), passages...),
	}
	s.EnsureID()
	return s, nil
}

// GenerateAll writes one golden per context, in order. Contexts for which
// the model never returns a usable golden are skipped and counted; any
// other error aborts.
func (g *LLMQuestionGenerator) GenerateAll(ctx context.Context, contexts [][]string) ([]*evaluation.Sample, int, error) {
	samples := make([]*evaluation.Sample, 0, len(contexts))
	skipped := 0
	for i, passages := range contexts {
		s, err := g.Generate(ctx, passages)
		if errors.Is(err, ragerr.ErrParseFailure) {
			skipped++
			g.logger.Warn("no usable golden, context skipped", "index", i, "error", err)
			continue
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("context %d: %w", i, err)
		}
		samples = append(samples, s)
		g.logger.Info("Golden generated", "index", i, "sample_id", s.ID)
	}
	return samples, skipped, nil
}

// GenerateFile reads a contexts file and writes the goldens as JSONL.
// Nothing is written when generation aborts.
func (g *LLMQuestionGenerator) GenerateFile(ctx context.Context, contextsPath, out string) (int, int, error) {
	contexts, err := dataset.ReadContexts(contextsPath)
	if err != nil {
		return 0, 0, err
	}
	samples, skipped, err := g.GenerateAll(ctx, contexts)
	if err != nil {
		return 0, skipped, err
	}
	if err := dataset.WriteSamples(out, samples); err != nil {
		return 0, skipped, err
	}
	return len(samples), skipped, nil
}

func requireText(fields ...string) evaluation.Check {
	return func(out map[string]interface{}) error {
		for _, f := range fields {
			if s, _ := out[f].(string); strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is empty", f)
			}
		}
		return nil
	}
}

var _ QuestionGenerator = (*LLMQuestionGenerator)(nil)
