package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aqua777/go-ragchat/ragerr"
)

// JSONOnlyInstruction is appended to every judge prompt.
const JSONOnlyInstruction = "Return JSON only, with no further explanation."

// JSONSentinel closes every judge prompt.
const JSONSentinel = "JSON:"

// InputKind is the type of a judge input field.
type InputKind string

const (
	InputText InputKind = "text"
	InputList InputKind = "list"
)

// InputField is a typed judge input.
type InputField struct {
	Name        string
	Kind        InputKind
	Description string
}

// Example is one few-shot demonstration.
type Example struct {
	Input  map[string]interface{}
	Output map[string]interface{}
}

// JudgeTemplate renders a judge prompt demanding JSON that matches OutputSchema.
type JudgeTemplate struct {
	Name         string
	Type         PromptType
	Instruction  string
	InputFields  []InputField
	OutputSchema *Schema
	Examples     []Example
}

// Validate checks the template is complete and every example matches the
// input fields and the output schema.
func (t *JudgeTemplate) Validate() error {
	op := "prompts.validate"
	if t.Name == "" {
		return ragerr.Validation(op, "judge template has no name")
	}
	if strings.TrimSpace(t.Instruction) == "" {
		return ragerr.Validation(op, t.Name+": empty instruction")
	}
	if len(t.InputFields) == 0 {
		return ragerr.Validation(op, t.Name+": no input fields")
	}
	if t.OutputSchema == nil || t.OutputSchema.Type != TypeObject {
		return ragerr.Validation(op, t.Name+": output schema must be an object")
	}
	for i, ex := range t.Examples {
		if err := t.checkInput(ex.Input); err != nil {
			return ragerr.Validation(op, fmt.Sprintf("%s: example %d: %v", t.Name, i+1, err))
		}
		if err := t.OutputSchema.Validate(normalize(ex.Output)); err != nil {
			return ragerr.Validation(op, fmt.Sprintf("%s: example %d: %v", t.Name, i+1, err))
		}
	}
	return nil
}

// ToString renders the prompt for data: the instruction, the output schema,
// the examples and the target input, ending with the JSON sentinel.
func (t *JudgeTemplate) ToString(data map[string]interface{}) (string, error) {
	if err := t.checkInput(data); err != nil {
		return "", ragerr.Validation("prompts.to_string", fmt.Sprintf("%s: %v", t.Name, err))
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(t.Instruction))
	b.WriteString("\n\n")

	b.WriteString("Input fields:\n")
	for _, f := range t.InputFields {
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Name, f.Kind, f.Description)
	}
	b.WriteString("\n")

	b.WriteString("Output format: a JSON object matching this schema.\n")
	b.WriteString(t.OutputSchema.Describe())
	b.WriteString("\n\n")

	if len(t.Examples) > 0 {
		b.WriteString("Examples:\n\n")
		for i, ex := range t.Examples {
			fmt.Fprintf(&b, "Example %d\nInput:\n%s\n%s\n%s\n\n", i+1, t.renderInput(ex.Input), JSONSentinel, renderJSON(ex.Output))
		}
	}

	b.WriteString(JSONOnlyInstruction)
	b.WriteString("\n\nInput:\n")
	b.WriteString(t.renderInput(data))
	b.WriteString("\n\n")
	b.WriteString(JSONSentinel)
	return b.String(), nil
}

func (t *JudgeTemplate) checkInput(data map[string]interface{}) error {
	for _, f := range t.InputFields {
		v, ok := data[f.Name]
		if !ok {
			return fmt.Errorf("missing input %q", f.Name)
		}
		switch f.Kind {
		case InputText:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("input %q must be text", f.Name)
			}
		case InputList:
			if _, ok := v.([]string); !ok {
				return fmt.Errorf("input %q must be a list of strings", f.Name)
			}
		}
	}
	return nil
}

// renderInput renders the declared fields as a JSON object in field order.
func (t *JudgeTemplate) renderInput(data map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, f := range t.InputFields {
		val, _ := json.MarshalIndent(data[f.Name], "  ", "  ")
		fmt.Fprintf(&b, "  %q: %s", f.Name, val)
		if i < len(t.InputFields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

func renderJSON(v interface{}) string {
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

// normalize round-trips v through JSON so Go literals validate like decoded output.
func normalize(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
