package precognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/elnormous/contenttype"
	"github.com/tidwall/gjson"
)

var (
	ErrUnsupportedContentType = errors.New("content-type must be application/json")
	ErrNilDestination         = errors.New("decode destination cannot be nil")
)

var jsonMediaType = contenttype.NewMediaType(ContentTypeApplicationJSON)

// RequestData wraps an incoming request and caches what request validators
// read from it, so several validators can inspect the same body.
type RequestData struct {
	request *http.Request

	body      []byte
	jsonBody  gjson.Result
	bodyOnce  sync.Once
	bodyError error

	queryParams url.Values
	queryOnce   sync.Once

	cookies     map[string]*http.Cookie
	cookiesOnce sync.Once
}

type requestDataKey struct{}

// RequestDataOf returns the cached wrapper attached to r by the server, or
// a fresh one when r did not pass through it.
func RequestDataOf(r *http.Request) *RequestData {
	if rd, ok := r.Context().Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return &RequestData{request: r}
}

// withRequestData attaches a RequestData cache to r. Only the returned
// request gets its body restored after a read.
func withRequestData(r *http.Request) *http.Request {
	if _, ok := r.Context().Value(requestDataKey{}).(*RequestData); ok {
		return r
	}
	rd := &RequestData{}
	rd.request = r.WithContext(context.WithValue(r.Context(), requestDataKey{}, rd))
	return rd.request
}

// Body returns the raw request body. The body is read once and put back on
// the request so the business handler can still read it.
func (rd *RequestData) Body() ([]byte, error) {
	rd.bodyOnce.Do(func() {
		if rd.request.Body == nil || rd.request.Body == http.NoBody {
			rd.jsonBody = gjson.Parse("{}")
			return
		}

		body, err := io.ReadAll(rd.request.Body)
		rd.request.Body.Close()
		rd.request.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			rd.bodyError = fmt.Errorf("failed to read request body: %w", err)
			return
		}

		rd.body = body
		if len(body) == 0 {
			rd.jsonBody = gjson.Parse("{}")
		} else {
			rd.jsonBody = gjson.ParseBytes(body)
		}
	})

	return rd.body, rd.bodyError
}

// JSON returns the parsed request body. An empty body reads as {}.
func (rd *RequestData) JSON() (gjson.Result, error) {
	if _, err := rd.Body(); err != nil {
		return gjson.Result{}, err
	}
	return rd.jsonBody, nil
}

// Get returns the body value at a gjson path.
func (rd *RequestData) Get(path string) (gjson.Result, error) {
	body, err := rd.JSON()
	if err != nil {
		return gjson.Result{}, err
	}
	return body.Get(path), nil
}

// Query returns the first value of a query parameter.
func (rd *RequestData) Query(name string) (string, bool) {
	rd.queryOnce.Do(func() {
		rd.queryParams = rd.request.URL.Query()
	})

	values, ok := rd.queryParams[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Cookie returns the value of the named cookie.
func (rd *RequestData) Cookie(name string) (string, bool) {
	rd.cookiesOnce.Do(func() {
		rd.cookies = make(map[string]*http.Cookie)
		for _, cookie := range rd.request.Cookies() {
			rd.cookies[cookie.Name] = cookie
		}
	})

	cookie, ok := rd.cookies[name]
	if !ok {
		return "", false
	}
	return cookie.Value, true
}

// BearerToken returns the token of a "Bearer" Authorization header.
func (rd *RequestData) BearerToken() (string, bool) {
	value := rd.request.Header.Get("Authorization")
	token, ok := strings.CutPrefix(value, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

///////////////////////////////////////////////////////////////////////////////
// Package Functions
///////////////////////////////////////////////////////////////////////////////

// JSONBody returns the parsed JSON body of r.
func JSONBody(r *http.Request) (gjson.Result, error) {
	return RequestDataOf(r).JSON()
}

// DecodeRequest binds the JSON body of r into dest. Bodies that are not
// declared as application/json are refused. When dest is Validatable its
// Validate method runs after binding and its error is returned as is.
func DecodeRequest(r *http.Request, dest any) error {
	if dest == nil {
		return ErrNilDestination
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		return &HTTPError{Status: http.StatusUnsupportedMediaType, Err: ErrUnsupportedContentType}
	}

	body, err := RequestDataOf(r).Body()
	if err != nil {
		return &HTTPError{Status: http.StatusBadRequest, Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	if err := sonic.Unmarshal(body, dest); err != nil {
		return &HTTPError{Status: http.StatusBadRequest, Message: "malformed JSON body", Err: err}
	}

	if v, ok := dest.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
