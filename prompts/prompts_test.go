package prompts

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/go-ragchat/ragerr"
)

func TestFormatString(t *testing.T) {
	assert.Equal(t, []string{"query", "context"}, GetTemplateVars("{query} {context} {query}"))
	assert.Equal(t, "a {missing}", FormatString("{x} {missing}", map[string]string{"x": "a"}))

	pt := NewPromptTemplate("Q: {query}\nC: {context}", PromptTypeQuestionAnswer)
	partial := pt.PartialFormat(map[string]string{"context": "ctx"})
	assert.Equal(t, []string{"query"}, partial.MissingVars(nil))
	assert.Equal(t, "Q: q\nC: ctx", partial.Format(map[string]string{"query": "q"}))
	assert.Empty(t, pt.PartialVars)
}

func TestSchemaValidate(t *testing.T) {
	s := Object("Verdicts",
		Field("verdicts", ArrayOf(Object("",
			Field("verdict", String("", "yes", "no")),
			Field("score", Number("", 0, 1)),
		))),
		Property{Name: "note", Schema: String(""), Optional: true},
	)

	decode := func(raw string) interface{} {
		var v interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &v))
		return v
	}

	assert.NoError(t, s.Validate(decode(`{"verdicts":[{"verdict":"Yes","score":0.5}]}`)))
	assert.Error(t, s.Validate(decode(`{"verdicts":[{"verdict":"maybe","score":0.5}]}`)))
	assert.Error(t, s.Validate(decode(`{"verdicts":[{"verdict":"no","score":2}]}`)))
	assert.Error(t, s.Validate(decode(`{"verdicts":{}}`)))
	assert.Error(t, s.Validate(decode(`{}`)))
	assert.Error(t, s.Validate(decode(`[]`)))
	assert.NoError(t, s.Validate(decode(`{"verdicts":[{"verdict":" NO ","score":1}],"note":null,"extra":1}`)))
	assert.Error(t, s.Validate(decode(`{"verdicts":[{"verdict":"no","score":"high"}]}`)))

	desc := s.Describe()
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(desc), &parsed), desc)
	assert.Equal(t, "object", parsed["type"])
	assert.Equal(t, []interface{}{"verdicts"}, parsed["required"])
	assert.Less(t, strings.Index(desc, `"verdict"`), strings.Index(desc, `"score"`), "properties keep declaration order")
}

func TestBuiltinJudgeTemplatesValidate(t *testing.T) {
	names := JudgeTemplateNames()
	assert.Len(t, names, 8)
	for _, name := range names {
		tmpl, err := JudgeTemplateByName(name)
		require.NoError(t, err)
		assert.NoError(t, tmpl.Validate(), name)
		assert.NotContains(t, tmpl.OutputSchema.Describe(), "Example", name)
	}

	_, err := JudgeTemplateByName("nope")
	assert.ErrorIs(t, err, ragerr.ErrNotFound)
}

func TestJudgeTemplateToString(t *testing.T) {
	prompt, err := ContextPrecisionTemplate.ToString(map[string]interface{}{
		"input":             "What is MRR?",
		"expected_output":   "Mean reciprocal rank.",
		"retrieval_context": []string{"MRR is the mean reciprocal rank.", "Unrelated."},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(prompt, "\n\nJSON:"))
	assert.Contains(t, prompt, JSONOnlyInstruction)
	assert.Contains(t, prompt, "Example 1")
	assert.Contains(t, prompt, `"What is MRR?"`)
	assert.Less(t, strings.Index(prompt, "Example 1"), strings.LastIndex(prompt, `"What is MRR?"`), "target input follows the examples")

	_, err = ContextPrecisionTemplate.ToString(map[string]interface{}{"input": "q"})
	assert.ErrorIs(t, err, ragerr.ErrValidation)

	_, err = ContextPrecisionTemplate.ToString(map[string]interface{}{
		"input": "q", "expected_output": "a", "retrieval_context": "not a list",
	})
	assert.ErrorIs(t, err, ragerr.ErrValidation)
}

func TestJudgeTemplateValidateRejectsBadExample(t *testing.T) {
	bad := &JudgeTemplate{
		Name:         "bad",
		Instruction:  "Score it.",
		InputFields:  []InputField{{Name: "input", Kind: InputText}},
		OutputSchema: Object("Score", Field("score", Number("", 0, 1))),
		Examples: []Example{
			{Input: map[string]interface{}{"input": "x"}, Output: map[string]interface{}{"score": 3}},
		},
	}
	assert.ErrorIs(t, bad.Validate(), ragerr.ErrValidation)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTaskPromptStoreBuiltins(t *testing.T) {
	s := NewTaskPromptStore(WithTaskPromptLogger(quiet()))
	assert.Equal(t, []string{"default_rag", "eval_rag"}, s.Names())
	assert.Equal(t, DefaultRAGPromptName, s.Selected().Name)

	require.NoError(t, s.Select(EvalRAGPromptName))
	assert.Contains(t, s.Selected().Template, "only the context")
	assert.ErrorIs(t, s.Select("missing"), ragerr.ErrNotFound)
	assert.Equal(t, EvalRAGPromptName, s.Selected().Name)

	rendered := s.Selected().Format(map[string]string{"query": "Q?", "context": "C."})
	assert.Contains(t, rendered, "Q?")
	assert.Contains(t, rendered, "C.")
}

func TestTaskPromptStoreLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(`
concise_rag:
  template: "Answer briefly.\nQuery: {query}\nContext: {context}"
  input_types:
    query: str
    context: str
default_rag:
  template: "Override {query} {context}"
  input_types: {query: str, context: str}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	s := NewTaskPromptStore(WithTaskPromptLogger(quiet()))
	require.NoError(t, s.LoadDir(dir))
	assert.Equal(t, []string{"concise_rag", "default_rag", "eval_rag"}, s.Names())
	assert.Equal(t, "Override {query} {context}", s.Selected().Template, "selected prompt follows the override")

	p, err := s.Get("concise_rag")
	require.NoError(t, err)
	assert.Equal(t, []string{"query", "context"}, p.TemplateVars)

	assert.NoError(t, s.LoadDir(filepath.Join(dir, "absent")))
}

func TestTaskPromptStoreMalformed(t *testing.T) {
	cases := map[string]string{
		"syntax.yaml":    "name: [unclosed",
		"unused.yaml":    "p:\n  template: \"{query}\"\n  input_types: {query: str, context: str}\n",
		"undeclared.yml": "p:\n  template: \"{query} {context}\"\n  input_types: {query: str}\n",
		"empty.yaml":     "p:\n  template: \"\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
			s := NewTaskPromptStore(WithTaskPromptLogger(quiet()))
			assert.ErrorIs(t, s.LoadDir(dir), ragerr.ErrValidation)
		})
	}
}

func TestTaskPromptStoreConcurrentSelect(t *testing.T) {
	s := NewTaskPromptStore(WithTaskPromptLogger(quiet()))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := DefaultRAGPromptName
			if i%2 == 0 {
				name = EvalRAGPromptName
			}
			assert.NoError(t, s.Select(name))
		}(i)
		go func() {
			defer wg.Done()
			assert.NotNil(t, s.Selected())
		}()
	}
	wg.Wait()
}
