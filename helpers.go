package precognition

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidPath = errors.New("invalid field path")
)

// Data holds form values keyed by top-level field name. Nested values are
// map[string]any and slices; file-like leaves are anything IsFile accepts.
type Data map[string]any

///////////////////////////////////////////////////////////////////////////////
// Files
///////////////////////////////////////////////////////////////////////////////

// IsFile reports whether v is a file-like leaf: raw bytes, a reader (which
// covers *os.File), or an uploaded multipart file.
func IsFile(v any) bool {
	switch f := v.(type) {
	case []byte:
		return true
	case io.Reader:
		return f != nil
	case *multipart.FileHeader:
		return f != nil
	case []*multipart.FileHeader:
		return true
	}
	return false
}

// HasFiles reports whether any leaf of data is file-like.
func HasFiles(data Data) bool {
	for _, v := range data {
		if containsFile(v) {
			return true
		}
	}
	return false
}

func containsFile(v any) bool {
	if IsFile(v) {
		return true
	}
	switch t := v.(type) {
	case Data:
		return HasFiles(t)
	case map[string]any:
		return HasFiles(t)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if containsFile(rv.Index(i).Interface()) {
				return true
			}
		}
	}
	return false
}

// WithoutFiles returns a copy of data with every file-like leaf replaced by
// nil. Objects and arrays keep their shape.
func WithoutFiles(data Data) Data {
	if data == nil {
		return nil
	}
	out := make(Data, len(data))
	for key, v := range data {
		out[key] = stripFiles(v)
	}
	return out
}

func stripFiles(v any) any {
	if IsFile(v) {
		return nil
	}

	switch t := v.(type) {
	case Data:
		return WithoutFiles(t)
	case map[string]any:
		return map[string]any(WithoutFiles(t))
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = stripFiles(rv.Index(i).Interface())
		}
		return out
	}

	return v
}

///////////////////////////////////////////////////////////////////////////////
// Key enumeration
///////////////////////////////////////////////////////////////////////////////

// AllNestedKeys lists every field path in data using dot notation for
// objects and numeric segments for array items. A parent key is listed
// before its children; siblings are in lexical order.
//
//	{"user": {"name": "x"}, "tags": ["a"]} => tags, tags.0, user, user.name
func AllNestedKeys(data Data) []string {
	var keys []string
	collectKeys(&keys, "", data)
	return keys
}

func collectKeys(keys *[]string, prefix string, obj map[string]any) {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := joinPath(prefix, name)
		*keys = append(*keys, path)
		collectValueKeys(keys, path, obj[name])
	}
}

func collectValueKeys(keys *[]string, path string, v any) {
	if v == nil || IsFile(v) {
		return
	}

	switch t := v.(type) {
	case Data:
		collectKeys(keys, path, t)
		return
	case map[string]any:
		collectKeys(keys, path, t)
		return
	case string:
		return
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return
	}
	for i := 0; i < rv.Len(); i++ {
		item := joinPath(path, strconv.Itoa(i))
		*keys = append(*keys, item)
		collectValueKeys(keys, item, rv.Index(i).Interface())
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

///////////////////////////////////////////////////////////////////////////////
// Path access
///////////////////////////////////////////////////////////////////////////////

// getPath reads the value at a dotted path.
func getPath(data Data, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = map[string]any(data)
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case Data:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at a dotted path, creating intermediate objects as
// needed. Array segments may address an existing item or append one past
// the end.
func setPath(data Data, path string, value any) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	parts := strings.Split(path, ".")
	head := parts[0]
	if len(parts) == 1 {
		data[head] = value
		return nil
	}

	next, err := setIn(data[head], parts[1:], value, head)
	if err != nil {
		return err
	}
	data[head] = next
	return nil
}

func setIn(node any, parts []string, value any, at string) (any, error) {
	part := parts[0]
	here := joinPath(at, part)

	switch t := node.(type) {
	case nil:
		node = map[string]any{}
		return setIn(node, parts, value, at)

	case Data:
		return setIn(map[string]any(t), parts, value, at)

	case map[string]any:
		if len(parts) == 1 {
			t[part] = value
			return t, nil
		}
		child, err := setIn(t[part], parts[1:], value, here)
		if err != nil {
			return nil, err
		}
		t[part] = child
		return t, nil

	case []any:
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx > len(t) {
			return nil, fmt.Errorf("%w: %q is not a usable index", ErrInvalidPath, here)
		}
		if idx == len(t) {
			t = append(t, nil)
		}
		if len(parts) == 1 {
			t[idx] = value
			return t, nil
		}
		child, err := setIn(t[idx], parts[1:], value, here)
		if err != nil {
			return nil, err
		}
		t[idx] = child
		return t, nil
	}

	return nil, fmt.Errorf("%w: %q is not an object or array", ErrInvalidPath, at)
}

///////////////////////////////////////////////////////////////////////////////
// Copying
///////////////////////////////////////////////////////////////////////////////

// cloneData deep copies objects and arrays. File leaves and other values
// are shared.
func cloneData(data Data) Data {
	if data == nil {
		return Data{}
	}
	out := make(Data, len(data))
	for key, v := range data {
		out[key] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	if IsFile(v) {
		return v
	}

	switch t := v.(type) {
	case Data:
		return cloneData(t)
	case map[string]any:
		return map[string]any(cloneData(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}
