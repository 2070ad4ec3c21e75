package precognition

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"reflect"
)

var (
	ErrInvalidStatusCode = errors.New("status handlers must be keyed by a 3-digit HTTP status code")
	ErrNilStatusHandler  = errors.New("status handler cannot be nil")
)

// StatusHandler overrides client-side error handling for one status. It
// owns the outcome entirely: the parser chain is not consulted and nothing
// is written to the form unless the handler does it.
type StatusHandler func(err error, form *Form)

// ServerStatusHandler overrides server-side error handling for one status.
// It must write the response; the business handler never runs afterwards.
type ServerStatusHandler func(w http.ResponseWriter, r *http.Request, err error)

// StatusHandlers maps an HTTP status code to its override handler.
type StatusHandlers[H any] map[int]H

// Set registers handler for status.
func (sh StatusHandlers[H]) Set(status int, handler H) error {
	if status < 100 || status > 599 {
		return fmt.Errorf("%w: got %d", ErrInvalidStatusCode, status)
	}
	if isNilHandler(handler) {
		return fmt.Errorf("%w: status %d", ErrNilStatusHandler, status)
	}
	sh[status] = handler
	return nil
}

// Clone returns an independent copy.
func (sh StatusHandlers[H]) Clone() StatusHandlers[H] {
	out := make(StatusHandlers[H], len(sh))
	maps.Copy(out, sh)
	return out
}

// Merge returns a new map holding sh overlaid with overrides. Invalid
// entries in overrides are reported and nothing is returned.
func (sh StatusHandlers[H]) Merge(overrides StatusHandlers[H]) (StatusHandlers[H], error) {
	out := sh.Clone()
	for status, handler := range overrides {
		if err := out.Set(status, handler); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lookup finds the handler for the status carried by err.
func (sh StatusHandlers[H]) Lookup(err error) (H, int, bool) {
	var zero H

	status, ok := StatusOf(err)
	if !ok {
		return zero, 0, false
	}

	handler, ok := sh[status]
	if !ok {
		return zero, status, false
	}
	return handler, status, true
}

func isNilHandler(handler any) bool {
	v := reflect.ValueOf(handler)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
