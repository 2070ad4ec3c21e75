package precognition

import (
	"errors"
	"fmt"
	"net/http"
)

///////////////////////////////////////////////////////////////////////////////
// Errors
///////////////////////////////////////////////////////////////////////////////

var (
	// ErrMissingPrecognitionMiddleware is wrapped by every ProtocolError.
	ErrMissingPrecognitionMiddleware = errors.New("did not receive a Precognition response. Ensure you have the Precognition middleware in place for the route")
	ErrFormDisabled                  = errors.New("form is currently disabled")
	ErrSubmissionCanceled            = errors.New("submission canceled")
	ErrFormClosed                    = errors.New("form is closed")
	ErrNilTransport                  = errors.New("transport cannot be nil")
)

// StatusCoder is implemented by errors that carry an HTTP status. Status
// handlers are looked up through it.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusOf returns the HTTP status carried by err or any error it wraps.
func StatusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}

// Response is the part of a backend answer the protocol cares about.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ResponseError is returned by transports when the backend answers with a
// non-2xx status.
type ResponseError struct {
	Response *Response
}

func (e *ResponseError) Error() string {
	if e.Response == nil {
		return "precognition: request failed without a response"
	}
	return fmt.Sprintf("precognition: request failed with status %d", e.Response.StatusCode)
}

func (e *ResponseError) HTTPStatus() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// NewResponseError builds a ResponseError around the given status, header
// and body. A nil header is replaced by an empty one.
func NewResponseError(status int, header http.Header, body []byte) *ResponseError {
	if header == nil {
		header = http.Header{}
	}
	return &ResponseError{Response: &Response{StatusCode: status, Header: header, Body: body}}
}

// responseOf digs the backend response out of err's chain.
func responseOf(err error) (*Response, bool) {
	var re *ResponseError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response, true
	}
	return nil, false
}

// HTTPError is an application error with a status, returned by server-side
// request validators (for example an authorization failure).
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Status)
}

func (e *HTTPError) HTTPStatus() int { return e.Status }

func (e *HTTPError) Unwrap() error { return e.Err }

// ProtocolError reports a broken precognitive exchange, almost always a
// route that is missing the server-side middleware. It carries the status
// of the offending response so status handlers still apply, for example to
// a 401 written by an auth layer in front of the middleware.
type ProtocolError struct {
	StatusCode int
	Reason     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s (status %d: %s)", ErrMissingPrecognitionMiddleware.Error(), e.StatusCode, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return ErrMissingPrecognitionMiddleware }

func (e *ProtocolError) HTTPStatus() int { return e.StatusCode }

// IsProtocolError reports whether err is a precognition contract violation.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrMissingPrecognitionMiddleware)
}
