// Package outputparser extracts structured output from LLM responses.
package outputparser

import (
	"fmt"
)

// StructuredOutput represents parsed output from an LLM.
type StructuredOutput struct {
	RawOutput    string      `json:"raw_output"`
	ParsedOutput interface{} `json:"parsed_output,omitempty"`
}

// OutputParserError represents an error during output parsing.
type OutputParserError struct {
	Message string
	Output  string
}

func (e *OutputParserError) Error() string {
	return fmt.Sprintf("output parser error: %s (output: %s)", e.Message, truncate(e.Output, 200))
}

// NewOutputParserError creates a new OutputParserError.
func NewOutputParserError(message, output string) *OutputParserError {
	return &OutputParserError{
		Message: message,
		Output:  output,
	}
}

// OutputParser is the interface for output parsers.
type OutputParser interface {
	// Parse parses the output string into structured output.
	Parse(output string) (*StructuredOutput, error)
	// Name returns the name of the parser.
	Name() string
}

// Validator checks a decoded JSON value.
type Validator interface {
	Validate(v interface{}) error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
