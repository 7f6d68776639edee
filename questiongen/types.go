// Package questiongen synthesizes evaluation goldens (a question and its
// expected answer) from contexts sampled out of the corpus.
package questiongen

import (
	"context"

	"github.com/aqua777/go-ragchat/evaluation"
)

// QuestionGenerator writes one golden for a context.
type QuestionGenerator interface {
	// Generate returns a sample whose input, reference and reference context are set.
	Generate(ctx context.Context, passages []string) (*evaluation.Sample, error)
	// Name returns the name of the generator.
	Name() string
}

// BaseQuestionGenerator provides a base implementation.
type BaseQuestionGenerator struct {
	name string
}

// BaseQuestionGeneratorOption configures a BaseQuestionGenerator.
type BaseQuestionGeneratorOption func(*BaseQuestionGenerator)

// WithGeneratorName sets the generator name.
func WithGeneratorName(name string) BaseQuestionGeneratorOption {
	return func(g *BaseQuestionGenerator) {
		g.name = name
	}
}

// NewBaseQuestionGenerator creates a new BaseQuestionGenerator.
func NewBaseQuestionGenerator(opts ...BaseQuestionGeneratorOption) *BaseQuestionGenerator {
	g := &BaseQuestionGenerator{
		name: "BaseQuestionGenerator",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the name of the generator.
func (g *BaseQuestionGenerator) Name() string {
	return g.name
}
