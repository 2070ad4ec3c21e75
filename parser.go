package precognition

import (
	"errors"

	"github.com/tidwall/gjson"
)

///////////////////////////////////////////////////////////////////////////////
// ErrorParser
///////////////////////////////////////////////////////////////////////////////

// ErrorParser turns an error raised by a transport or a request validator
// into the canonical payload. It reports false for errors it does not
// understand so the next parser in the chain gets a chance. Parsers never
// panic on foreign input.
type ErrorParser func(err error) (ValidationErrorsData, bool)

// NestedErrorParser recognises precognitive error responses whose payload
// is wrapped in an extra "data" object:
//
//	{"data": {"message": "...", "errors": {"name": ["..."]}}}
func NestedErrorParser(cfg Config) ErrorParser {
	return func(err error) (ValidationErrorsData, bool) {
		resp, ok := responseOf(err)
		if !ok || !cfg.isErrorEnvelope(resp) {
			return ValidationErrorsData{}, false
		}
		return decodeNestedPayload(resp.Body)
	}
}

// FlatErrorParser recognises precognitive error responses whose payload is
// the canonical shape itself:
//
//	{"message": "...", "errors": {"name": "..."}}
func FlatErrorParser(cfg Config) ErrorParser {
	return func(err error) (ValidationErrorsData, bool) {
		resp, ok := responseOf(err)
		if !ok || !cfg.isErrorEnvelope(resp) {
			return ValidationErrorsData{}, false
		}
		return decodeFlatPayload(resp.Body)
	}
}

// ValidationErrorParser recognises *ValidationError anywhere in the chain.
// Request validators return these.
func ValidationErrorParser() ErrorParser {
	return func(err error) (ValidationErrorsData, bool) {
		var ve *ValidationError
		if !errors.As(err, &ve) || ve == nil {
			return ValidationErrorsData{}, false
		}
		return ve.Data(), true
	}
}

///////////////////////////////////////////////////////////////////////////////
// Payload decoding
///////////////////////////////////////////////////////////////////////////////

func decodeFlatPayload(body []byte) (ValidationErrorsData, bool) {
	if !gjson.ValidBytes(body) {
		return ValidationErrorsData{}, false
	}
	return decodeValidationErrorsData(gjson.ParseBytes(body))
}

func decodeNestedPayload(body []byte) (ValidationErrorsData, bool) {
	if !gjson.ValidBytes(body) {
		return ValidationErrorsData{}, false
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return ValidationErrorsData{}, false
	}
	return decodeValidationErrorsData(root.Get(nestedDataField))
}

// decodeValidationErrorsData checks the payload shape strictly: an object
// with a string "message" (or "error") and an "errors" object whose values
// are strings or non-empty arrays of strings. Anything else is no match.
func decodeValidationErrorsData(obj gjson.Result) (ValidationErrorsData, bool) {
	if !obj.IsObject() {
		return ValidationErrorsData{}, false
	}

	message := obj.Get(messageField)
	if !message.Exists() {
		message = obj.Get(errorField)
	}
	if message.Type != gjson.String {
		return ValidationErrorsData{}, false
	}

	errs, ok := decodeValidationErrors(obj.Get(errorsField))
	if !ok {
		return ValidationErrorsData{}, false
	}

	return ValidationErrorsData{Message: message.Str, Errors: errs}, true
}

func decodeValidationErrors(obj gjson.Result) (ValidationErrors, bool) {
	if !obj.IsObject() {
		return nil, false
	}

	out := ValidationErrors{}
	valid := true

	obj.ForEach(func(key, value gjson.Result) bool {
		messages, ok := decodeMessages(value)
		if !ok {
			valid = false
			return false
		}
		out[key.String()] = messages
		return true
	})

	if !valid {
		return nil, false
	}
	return out, true
}

func decodeMessages(value gjson.Result) ([]string, bool) {
	if value.Type == gjson.String {
		return []string{value.Str}, true
	}

	if !value.IsArray() {
		return nil, false
	}

	items := value.Array()
	if len(items) == 0 {
		return nil, false
	}

	messages := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return nil, false
		}
		messages = append(messages, item.Str)
	}
	return messages, true
}
