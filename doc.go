// Package precognition implements precognitive validation: a client asks
// a backend to validate some (or all) fields of a form against the real
// server-side rules, without running the side effects of the request.
//
// The protocol is a set of headers layered on ordinary HTTP:
//   - `Precognition: true` flags a request (and its response) as precognitive.
//   - `Precognition-Validate-Only: name,email` restricts validation to a
//     subset of field paths. No header means "validate everything".
//   - `Precognition-Success: true` marks the success response, which is sent
//     with the configured success status (204 by default). Validation
//     failures use the configured error status (422 by default) and a JSON
//     body of the form {"message": "...", "errors": {"field": ["..."]}}.
//
// The package provides both halves of the exchange.
//
// Client side:
//   - Form: owns the field values, the error map, the set of touched keys and
//     the processing/validating flags. Exposes Validate, Submit, Touch,
//     Valid, Invalid, ForgetErrors, Reset and SetErrors.
//   - Validator: a debounced controller that runs at most one validation
//     round-trip per form at a time, through a caller-supplied Transport.
//   - ParserChain: an ordered list of ErrorParsers that normalise the
//     different backend payload shapes into ValidationErrorsData. The first
//     parser that recognises an error wins.
//   - StatusHandlers: overrides keyed by HTTP status code (401, 403, ...)
//     that replace the default error handling entirely.
//
// Server side:
//   - Server: wraps an EventHandler (request validators plus the business
//     handler). Under the Precognition header only the validators run; the
//     business handler is skipped and a synthetic success or error response
//     is produced instead.
//
// Parsers and status handlers can be registered globally with
// RegisterErrorParser, RegisterServerErrorParser and RegisterStatusHandler.
// Forms and servers take a snapshot of the global registry when they are
// built, merged with their own options.
package precognition
