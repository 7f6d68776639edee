package chatengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aqua777/go-ragchat/embedding"
	"github.com/aqua777/go-ragchat/llm"
	"github.com/aqua777/go-ragchat/memory"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/rag"
	"github.com/aqua777/go-ragchat/ragerr"
	"github.com/aqua777/go-ragchat/storage/chatstore"
)

const maxConversationName = 64

// ConversationalEngine answers queries with retrieval, enriching each query
// with a summary of the relevant prior turns and persisting both turns.
type ConversationalEngine struct {
	store       chatstore.MessageStore
	embedModel  embedding.EmbeddingModel
	selector    *memory.HistorySelector
	summarizer  *memory.ContextSummarizer
	invoker     *rag.Invoker
	prompts     *prompts.TaskPromptStore
	postProcess *llm.PostProcessorRegistry
	logger      *slog.Logger
}

// ConversationalEngineOption configures a ConversationalEngine.
type ConversationalEngineOption func(*ConversationalEngine)

// WithSelector sets the history selector.
func WithSelector(s *memory.HistorySelector) ConversationalEngineOption {
	return func(e *ConversationalEngine) {
		e.selector = s
	}
}

// WithTaskPrompts sets the task prompt store.
func WithTaskPrompts(s *prompts.TaskPromptStore) ConversationalEngineOption {
	return func(e *ConversationalEngine) {
		e.prompts = s
	}
}

// WithPostProcessors sets the registry used to clean answers before they are stored.
func WithPostProcessors(r *llm.PostProcessorRegistry) ConversationalEngineOption {
	return func(e *ConversationalEngine) {
		e.postProcess = r
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) ConversationalEngineOption {
	return func(e *ConversationalEngine) {
		e.logger = logger
	}
}

// NewConversationalEngine creates a ConversationalEngine.
func NewConversationalEngine(
	store chatstore.MessageStore,
	embedModel embedding.EmbeddingModel,
	summarizer *memory.ContextSummarizer,
	invoker *rag.Invoker,
	opts ...ConversationalEngineOption,
) *ConversationalEngine {
	e := &ConversationalEngine{
		store:       store,
		embedModel:  embedModel,
		summarizer:  summarizer,
		invoker:     invoker,
		postProcess: llm.NewPostProcessorRegistry(),
		logger:      slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = memory.NewHistorySelector(memory.WithSelectorLogger(e.logger))
	}
	if e.prompts == nil {
		e.prompts = prompts.NewTaskPromptStore(prompts.WithTaskPromptLogger(e.logger))
	}
	return e
}

// Chat runs one turn. The user message is persisted before retrieval starts,
// so it survives a failed or cancelled generation; the assistant message is
// only persisted for a complete, non-empty answer. Each answer delta is
// passed to onToken when it is not nil. session is advanced in place.
func (e *ConversationalEngine) Chat(ctx context.Context, session *Session, query string, onToken func(string)) (*ChatResponse, error) {
	const op = "chatengine.chat"

	if session == nil {
		return nil, ragerr.Validation(op, "session is required")
	}
	if strings.TrimSpace(query) == "" {
		return nil, ragerr.Validation(op, "query is empty")
	}
	taskPrompt, err := e.taskPrompt(session)
	if err != nil {
		return nil, err
	}

	if err := e.ensureConversation(ctx, session, query); err != nil {
		return nil, err
	}
	resp := &ChatResponse{ConversationID: session.ConversationID}

	userVec, err := e.embedModel.GetTextEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	userID, err := e.store.Append(ctx, session.ConversationID, llm.MessageRoleUser, query, userVec, session.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	session.ParentID = userID
	resp.UserMessageID = userID

	history, err := e.store.Retrieve(ctx, session.ConversationID)
	if err != nil {
		return resp, fmt.Errorf("failed to load history: %w", err)
	}
	prior := make([]chatstore.Message, 0, len(history))
	for _, m := range history {
		if m.ID != userID {
			prior = append(prior, m)
		}
	}

	selected, err := e.selector.Select(userVec, prior)
	if err != nil {
		return resp, err
	}
	resp.Selected = selected

	enhanced, err := e.summarizer.Enhance(ctx, query, memory.Messages(selected))
	if err != nil {
		return resp, err
	}
	resp.Query = enhanced
	e.logger.Info("Chat called", "conversation_id", session.ConversationID, "history", len(prior), "selected", len(selected))

	invoker := e.invoker
	if len(session.Generation) > 0 {
		invoker = invoker.With(session.Generation...)
	}
	events, err := invoker.Stream(ctx, enhanced.Prompt, taskPrompt)
	if err != nil {
		return resp, err
	}
	answer, err := rag.Collect(ctx, events, onToken)
	if err != nil {
		e.logger.Warn("generation aborted, assistant turn not persisted", "conversation_id", session.ConversationID, "error", err)
		return resp, err
	}

	answer = strings.TrimSpace(e.postProcess.For(invoker.Model())(answer))
	resp.Response = answer
	if answer == "" {
		e.logger.Warn("empty answer, assistant turn not persisted", "conversation_id", session.ConversationID)
		return resp, nil
	}

	answerVec, err := e.embedModel.GetTextEmbedding(ctx, answer)
	if err != nil {
		return resp, fmt.Errorf("failed to embed answer: %w", err)
	}
	assistantID, err := e.store.Append(ctx, session.ConversationID, llm.MessageRoleAssistant, answer, answerVec, userID)
	if err != nil {
		return resp, fmt.Errorf("failed to persist assistant message: %w", err)
	}
	session.ParentID = assistantID
	resp.AssistantMessageID = assistantID
	return resp, nil
}

func (e *ConversationalEngine) ensureConversation(ctx context.Context, session *Session, query string) error {
	if session.ConversationID != "" {
		return nil
	}
	name := session.Name
	if name == "" {
		name = conversationName(query)
	}
	id, err := e.store.CreateConversation(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	session.ConversationID = id
	session.ParentID = ""
	return nil
}

func (e *ConversationalEngine) taskPrompt(session *Session) (string, error) {
	if session.TaskPrompt == "" {
		return e.prompts.Selected().Template, nil
	}
	p, err := e.prompts.Get(session.TaskPrompt)
	if err != nil {
		return "", err
	}
	return p.Template, nil
}

func conversationName(query string) string {
	name := strings.Join(strings.Fields(query), " ")
	if r := []rune(name); len(r) > maxConversationName {
		name = string(r[:maxConversationName])
	}
	return name
}
