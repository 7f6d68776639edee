package prompts

import (
	"regexp"
)

// templateVarRegex matches {variable} placeholders in templates.
var templateVarRegex = regexp.MustCompile(`\{(\w+)\}`)

// GetTemplateVars extracts variable names from a template string, in order of first use.
func GetTemplateVars(template string) []string {
	matches := templateVarRegex.FindAllStringSubmatch(template, -1)
	vars := make([]string, 0, len(matches))
	seen := make(map[string]bool)
	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			vars = append(vars, match[1])
			seen[match[1]] = true
		}
	}
	return vars
}

// FormatString formats a template string with the given variables.
// Placeholders without a value are left in place.
func FormatString(template string, vars map[string]string) string {
	return templateVarRegex.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// PromptTemplate is a string prompt template with {variable} placeholders.
type PromptTemplate struct {
	// Template is the template string with {variable} placeholders.
	Template string
	// TemplateVars are the variable names extracted from the template.
	TemplateVars []string
	// PromptType is the type/category of this prompt.
	PromptType PromptType
	// PartialVars are pre-filled variables.
	PartialVars map[string]string
}

// NewPromptTemplate creates a new PromptTemplate.
func NewPromptTemplate(template string, promptType PromptType) *PromptTemplate {
	return &PromptTemplate{
		Template:     template,
		TemplateVars: GetTemplateVars(template),
		PromptType:   promptType,
		PartialVars:  make(map[string]string),
	}
}

// Format formats the prompt into a string. vars override partial variables.
func (pt *PromptTemplate) Format(vars map[string]string) string {
	allVars := make(map[string]string, len(pt.PartialVars)+len(vars))
	for k, v := range pt.PartialVars {
		allVars[k] = v
	}
	for k, v := range vars {
		allVars[k] = v
	}
	return FormatString(pt.Template, allVars)
}

// PartialFormat creates a new template with some variables pre-filled.
func (pt *PromptTemplate) PartialFormat(vars map[string]string) *PromptTemplate {
	newPT := &PromptTemplate{
		Template:     pt.Template,
		TemplateVars: pt.TemplateVars,
		PromptType:   pt.PromptType,
		PartialVars:  make(map[string]string, len(pt.PartialVars)+len(vars)),
	}
	for k, v := range pt.PartialVars {
		newPT.PartialVars[k] = v
	}
	for k, v := range vars {
		newPT.PartialVars[k] = v
	}
	return newPT
}

// MissingVars returns the template variables that neither vars nor the
// partial variables provide.
func (pt *PromptTemplate) MissingVars(vars map[string]string) []string {
	var missing []string
	for _, name := range pt.TemplateVars {
		if _, ok := vars[name]; ok {
			continue
		}
		if _, ok := pt.PartialVars[name]; ok {
			continue
		}
		missing = append(missing, name)
	}
	return missing
}
