package precognition

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

///////////////////////////////////////////////////////////////////////////////
// Canonical error payload
///////////////////////////////////////////////////////////////////////////////

// ValidationErrors maps a dotted field path to its messages. The first
// message is the one shown to users.
type ValidationErrors map[string][]string

// ValidationErrorsData is the canonical validation failure payload.
type ValidationErrorsData struct {
	Message string           `json:"message"`
	Errors  ValidationErrors `json:"errors"`
}

// First returns the authoritative message of key.
func (ve ValidationErrors) First(key string) (string, bool) {
	messages, ok := ve[key]
	if !ok || len(messages) == 0 {
		return "", false
	}
	return messages[0], true
}

// Keys returns the field paths in lexical order.
func (ve ValidationErrors) Keys() []string {
	keys := make([]string, 0, len(ve))
	for key := range ve {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep copies the error map.
func (ve ValidationErrors) Clone() ValidationErrors {
	if ve == nil {
		return nil
	}
	out := make(ValidationErrors, len(ve))
	for key, messages := range ve {
		out[key] = slices.Clone(messages)
	}
	return out
}

// Filter keeps only the entries whose key is listed. With no keys every
// entry is kept.
func (d ValidationErrorsData) Filter(keys ...string) ValidationErrorsData {
	out := ValidationErrorsData{Message: d.Message, Errors: make(ValidationErrors, len(d.Errors))}
	for key, messages := range d.Errors {
		if len(keys) == 0 || slices.Contains(keys, key) {
			out.Errors[key] = slices.Clone(messages)
		}
	}
	return out
}

///////////////////////////////////////////////////////////////////////////////
// Server-side validation errors
///////////////////////////////////////////////////////////////////////////////

// Validatable is an interface that marks a struct as expecting to be
// populated from a request and later have its fields validated by calling
// Validate(). DecodeRequest calls it after binding.
type Validatable interface {
	// Validate checks the fields of the struct and returns an error
	// if any of the fields are invalid.
	//
	// # It expects the implementation to be a pointer
	//
	// Return a *ValidationError to report field errors.
	Validate() error
}

// ValidationError is a field-level validation failure raised by request
// validators. ValidationErrorParser turns it into ValidationErrorsData.
type ValidationError struct {
	Message string
	Errors  ValidationErrors
}

// NewValidationError starts an empty ValidationError with a message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Errors: ValidationErrors{}}
}

// Add appends a message for field and returns ve for chaining.
func (ve *ValidationError) Add(field, message string) *ValidationError {
	if ve.Errors == nil {
		ve.Errors = ValidationErrors{}
	}
	ve.Errors[field] = append(ve.Errors[field], message)
	return ve
}

// Addf is Add with a format string.
func (ve *ValidationError) Addf(field, format string, args ...any) *ValidationError {
	return ve.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any field failed.
func (ve *ValidationError) HasErrors() bool {
	return ve != nil && len(ve.Errors) > 0
}

// OrNil returns ve when it holds field errors and nil otherwise, so
// Validate implementations can end with `return ve.OrNil()`.
func (ve *ValidationError) OrNil() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

// Data converts ve into the canonical payload.
func (ve *ValidationError) Data() ValidationErrorsData {
	message := ve.Message
	if message == "" {
		message = defaultErrorText
	}
	return ValidationErrorsData{Message: message, Errors: ve.Errors.Clone()}
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		if ve.Message == "" {
			return "validation failed"
		}
		return ve.Message
	}

	var b strings.Builder
	if ve.Message != "" {
		b.WriteString(ve.Message)
	} else {
		fmt.Fprintf(&b, "validation failed: %d field(s)", len(ve.Errors))
	}
	for _, key := range ve.Errors.Keys() {
		fmt.Fprintf(&b, "\n  - %s: %s", key, strings.Join(ve.Errors[key], "; "))
	}
	return b.String()
}
