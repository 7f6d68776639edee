package evaluation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/outputparser"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/storage/kvstore"
)

// JudgeCacheCollection is the kvstore collection holding judge verdicts.
const JudgeCacheCollection = "judge"

// DefaultJudgeAttempts is the number of calls made before giving up on a malformed verdict.
const DefaultJudgeAttempts = 2

// DefaultJudgeSeed is the sampling seed sent with every judge call.
const DefaultJudgeSeed = 42

// Check inspects a schema-valid verdict; a non-nil error counts as a parse failure.
type Check func(out map[string]interface{}) error

// Judge asks an LLM to fill a JudgeTemplate and returns the validated JSON object.
type Judge struct {
	llm         llm.LLM
	cache       kvstore.KVStore
	attempts    int
	seed        int
	postProcess *llm.PostProcessorRegistry
	logger      *slog.Logger
}

// JudgeOption configures a Judge.
type JudgeOption func(*Judge)

// WithJudgeCache sets the verdict cache. Defaults to an in-memory store.
func WithJudgeCache(cache kvstore.KVStore) JudgeOption {
	return func(j *Judge) {
		j.cache = cache
	}
}

// WithJudgeAttempts sets how many calls are made for one verdict.
func WithJudgeAttempts(n int) JudgeOption {
	return func(j *Judge) {
		if n > 0 {
			j.attempts = n
		}
	}
}

// WithJudgeSeed sets the sampling seed, so decompositions at high
// temperature repeat across runs on backends that honour it.
func WithJudgeSeed(seed int) JudgeOption {
	return func(j *Judge) {
		j.seed = seed
	}
}

// WithJudgePostProcessors sets the registry used to clean model output before parsing.
func WithJudgePostProcessors(r *llm.PostProcessorRegistry) JudgeOption {
	return func(j *Judge) {
		j.postProcess = r
	}
}

// WithJudgeLogger sets the logger.
func WithJudgeLogger(logger *slog.Logger) JudgeOption {
	return func(j *Judge) {
		j.logger = logger
	}
}

// NewJudge creates a Judge backed by l.
func NewJudge(l llm.LLM, opts ...JudgeOption) *Judge {
	j := &Judge{
		llm:         l,
		cache:       kvstore.NewSimpleKVStore(),
		attempts:    DefaultJudgeAttempts,
		seed:        DefaultJudgeSeed,
		postProcess: llm.NewPostProcessorRegistry(),
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Seed returns the sampling seed.
func (j *Judge) Seed() int {
	return j.seed
}

// Model returns the judge model id.
func (j *Judge) Model() string {
	return llm.ModelIDOf(j.llm)
}

// CacheKey derives the cache key of a rendered prompt.
func CacheKey(prompt, model string, temperature float32, seed int) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:]) + ":" + model + ":" +
		strconv.FormatFloat(float64(temperature), 'f', -1, 32) + ":" + strconv.Itoa(seed)
}

// Evaluate renders tmpl with data and returns the judge's verdict object.
// Verdicts that are not JSON, fail the output schema or fail check are
// retried; after the last attempt a ParseFailure is returned. LLM errors
// are returned as they are.
func (j *Judge) Evaluate(ctx context.Context, tmpl *prompts.JudgeTemplate, data map[string]interface{}, temperature float32, check Check) (map[string]interface{}, error) {
	op := "evaluation.judge." + tmpl.Name
	prompt, err := tmpl.ToString(data)
	if err != nil {
		return nil, err
	}

	model := j.Model()
	key := CacheKey(prompt, model, temperature, j.seed)
	if cached, err := j.cache.Get(ctx, key, JudgeCacheCollection); err != nil {
		j.logger.Warn("judge cache read failed", "template", tmpl.Name, "error", err)
	} else if cached != nil {
		return map[string]interface{}(cached), nil
	}

	parser := outputparser.NewJSONOutputParser(outputparser.WithValidator(tmpl.OutputSchema))
	seed := j.seed
	opts := &llm.GenerateOptions{Temperature: llm.Float32(temperature), Seed: &seed, JSON: true}

	var lastErr error
	for attempt := 1; attempt <= j.attempts; attempt++ {
		j.logger.Info("Judge called", "template", tmpl.Name, "model", model, "attempt", attempt)
		raw, err := llm.CompleteWith(ctx, j.llm, prompt, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out, err := j.parse(parser, j.postProcess.For(model)(raw), check)
		if err != nil {
			lastErr = err
			j.logger.Warn("judge returned an unusable verdict", "template", tmpl.Name, "attempt", attempt, "error", err)
			continue
		}

		if err := j.cache.Put(ctx, key, kvstore.StoredValue(out), JudgeCacheCollection); err != nil {
			j.logger.Warn("judge cache write failed", "template", tmpl.Name, "error", err)
		}
		return out, nil
	}
	return nil, ragerr.ParseFailure(op, lastErr)
}

func (j *Judge) parse(parser *outputparser.JSONOutputParser, text string, check Check) (map[string]interface{}, error) {
	parsed, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	out, ok := parsed.ParsedOutput.(map[string]interface{})
	if !ok {
		return nil, errors.New("verdict is not a JSON object")
	}
	if check != nil {
		if err := check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expectCount returns a Check requiring field to hold exactly n entries.
func expectCount(field string, n int) Check {
	return func(out map[string]interface{}) error {
		if got := len(listOf(out, field)); got != n {
			return fmt.Errorf("expected %d %s, got %d", n, field, got)
		}
		return nil
	}
}

// expectNonEmpty returns a Check requiring field to hold at least one entry.
func expectNonEmpty(field string) Check {
	return func(out map[string]interface{}) error {
		if len(listOf(out, field)) == 0 {
			return fmt.Errorf("no %s returned", field)
		}
		return nil
	}
}

func listOf(out map[string]interface{}, field string) []interface{} {
	list, _ := out[field].([]interface{})
	return list
}

func stringsOf(out map[string]interface{}, field string) []string {
	list := listOf(out, field)
	res := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// verdictsOf returns the lower-cased verdict field of each entry in out["verdicts"].
func verdictsOf(out map[string]interface{}, field string) []string {
	list := listOf(out, "verdicts")
	res := make([]string, len(list))
	for i, v := range list {
		entry, _ := v.(map[string]interface{})
		switch val := entry[field].(type) {
		case string:
			res[i] = normalizeVerdict(val)
		case float64:
			res[i] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return res
}

func reasonsOf(out map[string]interface{}) []string {
	list := listOf(out, "verdicts")
	res := make([]string, 0, len(list))
	for _, v := range list {
		entry, _ := v.(map[string]interface{})
		if r, ok := entry["reason"].(string); ok && r != "" {
			res = append(res, r)
		}
	}
	return res
}

func normalizeVerdict(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
