package precognition

import (
	"net/http"
	"slices"
	"strings"
)

///////////////////////////////////////////////////////////////////////////////
// Request side
///////////////////////////////////////////////////////////////////////////////

// RequestHeaders returns a copy of base flagged as precognitive. When keys
// is non-empty the validate-only header lists them, in order, joined by the
// configured separator; otherwise the header is left out, which means
// "validate everything". base is never modified.
func (c Config) RequestHeaders(base http.Header, keys ...string) http.Header {
	h := make(http.Header, len(base)+2)
	for name, values := range base {
		h[name] = slices.Clone(values)
	}

	h.Set(c.PrecognitiveHeader, HeaderValueTrue)

	if len(keys) > 0 {
		h.Set(c.ValidateOnlyHeader, strings.Join(keys, c.ValidatingKeysSeparator))
	} else {
		h.Del(c.ValidateOnlyHeader)
	}

	return h
}

// IsPrecognitiveRequest reports whether the precognitive flag is "true".
func (c Config) IsPrecognitiveRequest(h http.Header) bool {
	return h.Get(c.PrecognitiveHeader) == HeaderValueTrue
}

// ValidateOnlyKeys splits the validate-only header by the separator. It is
// the exact inverse of RequestHeaders: segments are neither trimmed nor
// dropped. It returns nil when the header is absent or empty.
func (c Config) ValidateOnlyKeys(h http.Header) []string {
	raw := h.Get(c.ValidateOnlyHeader)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, c.ValidatingKeysSeparator)
}

///////////////////////////////////////////////////////////////////////////////
// Response side
///////////////////////////////////////////////////////////////////////////////

func (c Config) hasPrecognitiveHeader(h http.Header) bool {
	return h.Get(c.PrecognitiveHeader) == HeaderValueTrue
}

// IsSuccessResponse reports whether resp is a precognitive success: the
// success status, the success flag and the echoed precognitive flag.
func (c Config) IsSuccessResponse(resp *Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == c.SuccessStatusCode &&
		resp.Header.Get(c.SuccessHeader) == HeaderValueTrue &&
		c.hasPrecognitiveHeader(resp.Header)
}

// IsErrorResponse reports whether err carries a precognitive validation
// failure: the error status, the precognitive flag, and a body in either
// accepted payload convention. Malformed bodies are rejected.
func (c Config) IsErrorResponse(err error) bool {
	resp, ok := responseOf(err)
	if !ok || !c.isErrorEnvelope(resp) {
		return false
	}

	if _, ok := decodeFlatPayload(resp.Body); ok {
		return true
	}
	_, ok = decodeNestedPayload(resp.Body)
	return ok
}

func (c Config) isErrorEnvelope(resp *Response) bool {
	return resp.StatusCode == c.ErrorStatusCode && c.hasPrecognitiveHeader(resp.Header)
}

// AssertPrecognitiveResponse checks that a backend honoured a precognitive
// request. Requests without the precognitive flag are never checked. A
// response breaks the contract when it lacks the precognitive flag, or when
// it uses the success status without the success flag. Any other status
// that echoes the flag (401, 403, 500, ...) is left to the caller.
func (c Config) AssertPrecognitiveResponse(reqHeader http.Header, resp *Response) error {
	if !c.IsPrecognitiveRequest(reqHeader) {
		return nil
	}

	if resp == nil {
		return &ProtocolError{Reason: "no response"}
	}

	switch {
	case !c.hasPrecognitiveHeader(resp.Header):
		return &ProtocolError{StatusCode: resp.StatusCode, Reason: "missing " + c.PrecognitiveHeader + " header"}
	case resp.StatusCode == c.SuccessStatusCode && resp.Header.Get(c.SuccessHeader) != HeaderValueTrue:
		return &ProtocolError{StatusCode: resp.StatusCode, Reason: "missing " + c.SuccessHeader + " header"}
	}
	return nil
}
