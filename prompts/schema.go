package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaType is a JSON schema type name.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema describes the JSON a judge must return. Object properties keep
// their declaration order when rendered.
type Schema struct {
	Title       string
	Description string
	Type        SchemaType
	Properties  []Property
	Items       *Schema
	Enum        []string
	Minimum     *float64
	Maximum     *float64

	once       sync.Once
	compiled   *jsonschema.Schema
	compileErr error
}

// Property is a named object member.
type Property struct {
	Name     string
	Schema   *Schema
	Optional bool
}

// Object returns an object schema with required properties.
func Object(title string, props ...Property) *Schema {
	return &Schema{Title: title, Type: TypeObject, Properties: props}
}

// ArrayOf returns an array schema.
func ArrayOf(items *Schema) *Schema {
	return &Schema{Type: TypeArray, Items: items}
}

// String returns a string schema, optionally restricted to enum values.
func String(description string, enum ...string) *Schema {
	return &Schema{Type: TypeString, Description: description, Enum: enum}
}

// Number returns a number schema bounded to [min, max].
func Number(description string, min, max float64) *Schema {
	return &Schema{Type: TypeNumber, Description: description, Minimum: &min, Maximum: &max}
}

// Integer returns an integer schema bounded to [min, max].
func Integer(description string, min, max float64) *Schema {
	return &Schema{Type: TypeInteger, Description: description, Minimum: &min, Maximum: &max}
}

// Field returns a required property.
func Field(name string, s *Schema) Property {
	return Property{Name: name, Schema: s}
}

// Describe renders the schema as an indented JSON schema document.
func (s *Schema) Describe() string {
	var buf bytes.Buffer
	s.write(&buf, "")
	return buf.String()
}

func (s *Schema) write(buf *bytes.Buffer, indent string) {
	inner := indent + "  "
	var lines []string
	add := func(key string, raw string) {
		lines = append(lines, fmt.Sprintf("%s%q: %s", inner, key, raw))
	}
	quote := func(v interface{}) string {
		b, _ := json.Marshal(v)
		return string(b)
	}

	if s.Title != "" {
		add("title", quote(s.Title))
	}
	if s.Description != "" {
		add("description", quote(s.Description))
	}
	add("type", quote(string(s.Type)))
	if len(s.Enum) > 0 {
		add("enum", quote(s.Enum))
	}
	if s.Minimum != nil {
		add("minimum", quote(*s.Minimum))
	}
	if s.Maximum != nil {
		add("maximum", quote(*s.Maximum))
	}
	if s.Items != nil {
		var sub bytes.Buffer
		s.Items.write(&sub, inner)
		add("items", sub.String())
	}
	if s.Type == TypeObject {
		var props bytes.Buffer
		props.WriteString("{\n")
		var required []string
		for i, p := range s.Properties {
			props.WriteString(inner + "  ")
			props.WriteString(quote(p.Name))
			props.WriteString(": ")
			p.Schema.write(&props, inner+"  ")
			if i < len(s.Properties)-1 {
				props.WriteString(",")
			}
			props.WriteString("\n")
			if !p.Optional {
				required = append(required, p.Name)
			}
		}
		props.WriteString(inner + "}")
		add("properties", props.String())
		if required == nil {
			required = []string{}
		}
		add("required", quote(required))
	}

	buf.WriteString("{\n")
	buf.WriteString(strings.Join(lines, ",\n"))
	buf.WriteString("\n" + indent + "}")
}

// Validate checks a decoded JSON value (as produced by encoding/json into
// interface{}) against the schema. Unknown object members are allowed, enum
// values match case-insensitively and optional properties may be null.
func (s *Schema) Validate(v interface{}) error {
	s.once.Do(s.compile)
	if s.compileErr != nil {
		return s.compileErr
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode value: %w", err)
	}
	return s.compiled.Validate(inst)
}

func (s *Schema) compile() {
	raw, err := json.Marshal(s.document(false))
	if err != nil {
		s.compileErr = fmt.Errorf("failed to encode schema: %w", err)
		return
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		s.compileErr = fmt.Errorf("failed to decode schema: %w", err)
		return
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		s.compileErr = fmt.Errorf("failed to add schema: %w", err)
		return
	}
	s.compiled, s.compileErr = c.Compile(schemaURL)
}

const schemaURL = "./judge_output.json"

// document is the validation form of the schema. Enums become
// case-insensitive patterns since judges vary in capitalisation.
func (s *Schema) document(nullable bool) map[string]interface{} {
	doc := map[string]interface{}{}
	if nullable {
		doc["type"] = []string{string(s.Type), "null"}
	} else {
		doc["type"] = string(s.Type)
	}
	if len(s.Enum) > 0 {
		alts := make([]string, len(s.Enum))
		for i, e := range s.Enum {
			alts[i] = regexp.QuoteMeta(e)
		}
		doc["pattern"] = `^\s*(?i:` + strings.Join(alts, "|") + `)\s*$`
	}
	if s.Minimum != nil {
		doc["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		doc["maximum"] = *s.Maximum
	}
	if s.Items != nil {
		doc["items"] = s.Items.document(false)
	}
	if s.Type == TypeObject {
		props := make(map[string]interface{}, len(s.Properties))
		required := []string{}
		for _, p := range s.Properties {
			props[p.Name] = p.Schema.document(p.Optional)
			if !p.Optional {
				required = append(required, p.Name)
			}
		}
		doc["properties"] = props
		doc["required"] = required
	}
	return doc
}
