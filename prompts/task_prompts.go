package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/aqua777/go-ragchat/ragerr"
)

// Built-in task prompt names.
const (
	DefaultRAGPromptName = "default_rag"
	EvalRAGPromptName    = "eval_rag"
)

// DefaultRAGTemplate answers from the retrieved context with line item references.
const DefaultRAGTemplate = `## Task:
Answer the query given immediately below given the context which follows later.
Use line item references like [1], [2], ... to refer to specifically numbered items in the provided context.
If the context does not help, answer from general knowledge and say so.

### Query:
{query}

### Context:
{context}

## Response:
`

// EvalRAGTemplate answers strictly from the context and refuses otherwise.
const EvalRAGTemplate = `## Task:
Answer the query using only the context below.
Do not use prior knowledge.
If the context does not contain the answer, reply exactly: "I cannot answer this question based on the provided context."

### Query:
{query}

### Context:
{context}

## Response:
`

// TaskPrompt is a RAG task prompt. Its variables are filled by the RAG service.
type TaskPrompt struct {
	Name       string
	InputTypes map[string]string
	*PromptTemplate
}

// NewTaskPrompt creates a TaskPrompt and checks its variables match inputTypes.
func NewTaskPrompt(name, template string, inputTypes map[string]string) (*TaskPrompt, error) {
	p := &TaskPrompt{
		Name:           name,
		InputTypes:     inputTypes,
		PromptTemplate: NewPromptTemplate(template, PromptTypeQuestionAnswer),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the prompt has a template whose variables are exactly the declared inputs.
func (p *TaskPrompt) Validate() error {
	op := "prompts.task_prompt"
	if strings.TrimSpace(p.Name) == "" {
		return ragerr.Validation(op, "task prompt has no name")
	}
	if strings.TrimSpace(p.Template) == "" {
		return ragerr.Validation(op, p.Name+": empty template")
	}
	used := make(map[string]bool)
	for _, v := range p.TemplateVars {
		used[v] = true
		if _, ok := p.InputTypes[v]; !ok {
			return ragerr.Validation(op, fmt.Sprintf("%s: variable {%s} has no input type", p.Name, v))
		}
	}
	for name := range p.InputTypes {
		if !used[name] {
			return ragerr.Validation(op, fmt.Sprintf("%s: input %q is not used by the template", p.Name, name))
		}
	}
	return nil
}

type taskPromptFile map[string]struct {
	Template   string            `yaml:"template"`
	InputTypes map[string]string `yaml:"input_types"`
}

// TaskPromptStore holds task prompts and the currently selected one.
// Selection is swapped atomically and is safe for concurrent readers.
type TaskPromptStore struct {
	mu       sync.RWMutex
	prompts  map[string]*TaskPrompt
	selected atomic.Pointer[TaskPrompt]
	logger   *slog.Logger
}

// TaskPromptStoreOption configures a TaskPromptStore.
type TaskPromptStoreOption func(*TaskPromptStore)

// WithTaskPromptLogger sets the logger.
func WithTaskPromptLogger(logger *slog.Logger) TaskPromptStoreOption {
	return func(s *TaskPromptStore) {
		s.logger = logger
	}
}

// NewTaskPromptStore creates a store holding the built-in prompts with
// default_rag selected.
func NewTaskPromptStore(opts ...TaskPromptStoreOption) *TaskPromptStore {
	s := &TaskPromptStore{
		prompts: make(map[string]*TaskPrompt),
		logger:  slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	inputs := map[string]string{"query": "str", "context": "str"}
	for name, tmpl := range map[string]string{
		DefaultRAGPromptName: DefaultRAGTemplate,
		EvalRAGPromptName:    EvalRAGTemplate,
	} {
		p, err := NewTaskPrompt(name, tmpl, inputs)
		if err != nil {
			panic(err)
		}
		s.prompts[name] = p
	}
	s.selected.Store(s.prompts[DefaultRAGPromptName])
	return s
}

// LoadDir loads every .yaml/.yml file of dir. A missing directory is not an error.
// Prompts from files replace built-ins of the same name.
func (s *TaskPromptStore) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read prompts directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		if err := s.LoadFile(f); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile loads the prompts of one YAML file:
//
//	name:
//	  template: "..."
//	  input_types: {query: str, context: str}
func (s *TaskPromptStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file taskPromptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ragerr.Wrap(ragerr.KindValidation, "prompts.load", fmt.Errorf("%s: %w", path, err))
	}
	if len(file) == 0 {
		return ragerr.Validation("prompts.load", path+": no prompts defined")
	}

	loaded := make([]*TaskPrompt, 0, len(file))
	for name, def := range file {
		p, err := NewTaskPrompt(name, def.Template, def.InputTypes)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		loaded = append(loaded, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range loaded {
		s.prompts[p.Name] = p
		if cur := s.selected.Load(); cur != nil && cur.Name == p.Name {
			s.selected.Store(p)
		}
	}
	s.logger.Info("Loaded task prompts", "path", path, "count", len(loaded))
	return nil
}

// Get returns a prompt by name.
func (s *TaskPromptStore) Get(name string) (*TaskPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[name]
	if !ok {
		return nil, ragerr.NotFound("prompts.get", "task prompt "+name)
	}
	return p, nil
}

// Names lists the prompt names.
func (s *TaskPromptStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.prompts))
	for name := range s.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select makes name the selected prompt.
func (s *TaskPromptStore) Select(name string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	s.selected.Store(p)
	return nil
}

// Selected returns the selected prompt.
func (s *TaskPromptStore) Selected() *TaskPrompt {
	return s.selected.Load()
}
