// Package prompts provides prompt templates: judge templates with strict
// JSON output schemas and the task prompts sent to the RAG service.
package prompts

// PromptType represents the type/category of a prompt.
type PromptType string

const (
	// PromptTypeQuestionAnswer is a RAG task prompt.
	PromptTypeQuestionAnswer PromptType = "text_qa"
	// PromptTypeSummary condenses conversation history.
	PromptTypeSummary PromptType = "summary"
	// PromptTypeDecompose splits text into claims or statements.
	PromptTypeDecompose PromptType = "decompose"
	// PromptTypeJudge classifies or scores against a rubric.
	PromptTypeJudge PromptType = "judge"
	// PromptTypeSynthesis writes evaluation goldens.
	PromptTypeSynthesis PromptType = "synthesis"
	// PromptTypeCustom is the default.
	PromptTypeCustom PromptType = "custom"
)

// String returns the string representation of the prompt type.
func (pt PromptType) String() string {
	return string(pt)
}
