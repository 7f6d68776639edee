package outputparser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSONOutputParser extracts the first JSON object of an LLM response and
// optionally validates it.
type JSONOutputParser struct {
	validator Validator
}

// JSONOutputParserOption configures a JSONOutputParser.
type JSONOutputParserOption func(*JSONOutputParser)

// WithValidator sets the validator applied to the decoded object.
func WithValidator(v Validator) JSONOutputParserOption {
	return func(p *JSONOutputParser) {
		p.validator = v
	}
}

// NewJSONOutputParser creates a new JSONOutputParser.
func NewJSONOutputParser(opts ...JSONOutputParserOption) *JSONOutputParser {
	p := &JSONOutputParser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the name of the parser.
func (p *JSONOutputParser) Name() string {
	return "JSONOutputParser"
}

// Parse decodes the first JSON object found in output.
func (p *JSONOutputParser) Parse(output string) (*StructuredOutput, error) {
	jsonStr := ExtractFirstObject(output)
	if jsonStr == "" {
		return nil, NewOutputParserError("no JSON object found in output", output)
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, NewOutputParserError(fmt.Sprintf("failed to parse JSON: %v", err), output)
	}
	if p.validator != nil {
		if err := p.validator.Validate(parsed); err != nil {
			return nil, NewOutputParserError(fmt.Sprintf("output does not match schema: %v", err), output)
		}
	}

	return &StructuredOutput{
		RawOutput:    output,
		ParsedOutput: parsed,
	}, nil
}

// ParseInto parses output and decodes the object into target.
func (p *JSONOutputParser) ParseInto(output string, target interface{}) error {
	res, err := p.Parse(output)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(res.ParsedOutput)
	if err != nil {
		return NewOutputParserError(fmt.Sprintf("failed to re-encode JSON: %v", err), output)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return NewOutputParserError(fmt.Sprintf("failed to decode JSON: %v", err), output)
	}
	return nil
}

// ExtractFirstObject returns the first balanced, valid JSON object in text,
// or "" when there is none. Code fences and surrounding prose are skipped.
func ExtractFirstObject(text string) string {
	for start := strings.IndexByte(text, '{'); start != -1; {
		if end := matchBrace(text, start); end != -1 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var _ OutputParser = (*JSONOutputParser)(nil)
