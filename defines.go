package precognition

import (
	"time"
)

// constants for the default header contract
const (
	DefaultPrecognitiveHeader      = "Precognition"
	DefaultValidateOnlyHeader      = "Precognition-Validate-Only"
	DefaultSuccessHeader           = "Precognition-Success"
	DefaultValidatingKeysSeparator = ","
)

// constants for the default status codes
const (
	DefaultErrorStatusCode   = 422 // http.StatusUnprocessableEntity
	DefaultSuccessStatusCode = 204 // http.StatusNoContent
)

// DefaultValidationTimeout is the debounce window used when none is configured.
const DefaultValidationTimeout = 1500 * time.Millisecond

// header values
const (
	HeaderValueTrue  = "true"
	HeaderValueFalse = "false"

	contentTypeHeader = "Content-Type"
)

// Parser Name constants for built in parsers, used in log fields.
const (
	NestedErrorParserName     = "nested-error-parser"
	FlatErrorParserName       = "flat-error-parser"
	ValidationErrorParserName = "validation-error-parser"
)

// JSON field names of the canonical error payload.
const (
	messageField     = "message"
	errorField       = "error"
	errorsField      = "errors"
	nestedDataField  = "data"
	defaultErrorText = "The given data was invalid."
)

// Mime Type constants for content types.
const (
	ContentTypeApplicationJSON = "application/json"
)
