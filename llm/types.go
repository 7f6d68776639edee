package llm

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// MessageRoleSystem is for system instructions.
	MessageRoleSystem MessageRole = "system"
	// MessageRoleUser is for user messages.
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant is for assistant responses.
	MessageRoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is a known role.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleSystem, MessageRoleUser, MessageRoleAssistant:
		return true
	}
	return false
}

// ChatMessage represents a message in a chat conversation.
type ChatMessage struct {
	// Role is the role of the message sender.
	Role MessageRole `json:"role"`
	// Content is the text content.
	Content string `json:"content"`
}

// NewChatMessage creates a new chat message with simple text content.
func NewChatMessage(role MessageRole, content string) ChatMessage {
	return ChatMessage{
		Role:    role,
		Content: content,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return NewChatMessage(MessageRoleAssistant, content)
}

// GenerateOptions are per-call sampling options. Nil fields keep the client default.
type GenerateOptions struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	// NumPredict is the maximum number of tokens to generate.
	NumPredict *int
	// NumCtx is the context window size.
	NumCtx *int
	Seed   *int
	// JSON requests a JSON object response.
	JSON bool
}

// WithTemperature returns a copy of o with the temperature set.
func (o *GenerateOptions) WithTemperature(t float32) *GenerateOptions {
	c := GenerateOptions{}
	if o != nil {
		c = *o
	}
	c.Temperature = &t
	return &c
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// LLMMetadata contains metadata about an LLM model's capabilities.
type LLMMetadata struct {
	// ModelName is the name/identifier of the model.
	ModelName string `json:"model_name"`
	// ContextWindow is the maximum number of tokens the model can process.
	ContextWindow int `json:"context_window"`
	// NumOutputTokens is the maximum number of tokens the model can generate.
	NumOutputTokens int `json:"num_output_tokens"`
}
