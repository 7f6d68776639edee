// Package validation provides field validation for settings, prompt files and
// pipeline parameters.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/aqua777/go-ragchat/ragerr"
)

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// ToError returns nil if no errors, otherwise returns the ValidationErrors.
func (e ValidationErrors) ToError() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validator collects validation errors.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// AddError adds a validation error.
func (v *Validator) AddError(field, message string, value interface{}) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Require checks that a condition is true.
func (v *Validator) Require(condition bool, field, message string) {
	if !condition {
		v.AddError(field, message, nil)
	}
}

// RequirePositive checks that an integer is positive (> 0).
func (v *Validator) RequirePositive(value int, field string) {
	if value <= 0 {
		v.AddError(field, "must be positive", value)
	}
}

// RequireNonNegative checks that an integer is non-negative (>= 0).
func (v *Validator) RequireNonNegative(value int, field string) {
	if value < 0 {
		v.AddError(field, "must be non-negative", value)
	}
}

// RequireNotEmpty checks that a string is not empty.
func (v *Validator) RequireNotEmpty(value, field string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "must not be empty", nil)
	}
}

// RequireInRange checks that a float lies in [min, max].
func (v *Validator) RequireInRange(value, min, max float64, field string) {
	if math.IsNaN(value) || value < min || value > max {
		v.AddError(field, fmt.Sprintf("must be between %g and %g", min, max), value)
	}
}

// RequireLessThan checks that a < b.
func (v *Validator) RequireLessThan(a, b int, fieldA, fieldB string) {
	if a >= b {
		v.AddError(fieldA, fmt.Sprintf("must be less than %s", fieldB), a)
	}
}

// RequireOneOf checks that value is one of allowed.
func (v *Validator) RequireOneOf(value string, allowed []string, field string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, "must be one of "+strings.Join(allowed, ", "), value)
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Error returns an error if there are validation errors, nil otherwise.
func (v *Validator) Error() error {
	return v.errors.ToError()
}

// HasErrors returns true if there are any validation errors.
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Err returns the collected errors as a ragerr validation error for op, or nil.
func (v *Validator) Err(op string) error {
	if !v.HasErrors() {
		return nil
	}
	return ragerr.Wrap(ragerr.KindValidation, op, v.errors)
}

// ValidateChunkParams checks chunk_size and chunk_overlap for a token splitter.
func ValidateChunkParams(chunkSize, chunkOverlap int) error {
	v := NewValidator()
	v.RequirePositive(chunkSize, "chunk_size")
	v.RequireNonNegative(chunkOverlap, "chunk_overlap")
	if chunkSize > 0 {
		v.RequireLessThan(chunkOverlap, chunkSize, "chunk_overlap", "chunk_size")
	}
	return v.Error()
}
