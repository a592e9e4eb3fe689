// Package jsontree holds the JSON value model used throughout attestview.
//
// Values are plain Go values: nil, bool, json.Number, string, []any and
// *Object. Object keeps keys in document order so that walks, reports and
// "first digest entry" lookups follow the source document rather than Go's
// randomized map iteration.
package jsontree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/jsonc"
)

// Object is an insertion-ordered JSON mapping.
type Object struct {
	keys   []string
	values map[string]any
}

func NewObject() *Object {
	return &Object{values: map[string]any{}}
}

// Set stores v under key. A new key is appended; an existing key keeps its
// position.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Get(key string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in document order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Parse decodes exactly one JSON value from raw. Trailing non-whitespace
// content is an error.
func Parse(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected trailing content after JSON value")
	}
	return v, nil
}

// ParseString is Parse for string input.
func ParseString(s string) (any, error) {
	return Parse([]byte(s))
}

// ParseJSONC strips comments and trailing commas before parsing.
func ParseJSONC(raw []byte) (any, error) {
	return Parse(jsonc.ToJSON(raw))
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be string, got %T", keyTok)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return t, nil
	}
}

// MarshalJSON encodes the object with keys in document order.
func (o *Object) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := write(buf, o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while keeping key order.
func (o *Object) UnmarshalJSON(raw []byte) error {
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	parsed, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", TypeName(v))
	}
	*o = *parsed
	return nil
}

// Marshal encodes any tree value compactly, preserving object key order.
func Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := write(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent is Marshal followed by json.Indent.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	raw, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &bytes.Buffer{}
	if err := json.Indent(out, raw, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func write(w *bytes.Buffer, v any) error {
	switch vv := v.(type) {
	case nil:
		w.WriteString("null")
	case bool:
		if vv {
			w.WriteString("true")
		} else {
			w.WriteString("false")
		}
	case json.Number:
		w.WriteString(vv.String())
	case string:
		return writeString(w, vv)
	case []any:
		w.WriteByte('[')
		for i, item := range vv {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := write(w, item); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	case *Object:
		if vv == nil {
			w.WriteString("null")
			return nil
		}
		w.WriteByte('{')
		for i, k := range vv.keys {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := writeString(w, k); err != nil {
				return err
			}
			w.WriteByte(':')
			if err := write(w, vv.values[k]); err != nil {
				return err
			}
		}
		w.WriteByte('}')
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %T: %w", v, err)
		}
		w.Write(b)
	}
	return nil
}

// writeString encodes s without HTML escaping so output text matches the
// input text.
func writeString(w *bytes.Buffer, s string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	w.Truncate(w.Len() - 1)
	return nil
}

// Plain converts a tree into map[string]any / []any form for libraries that
// only understand encoding/json shapes. Key order is lost.
func Plain(v any) any {
	switch vv := v.(type) {
	case *Object:
		out := make(map[string]any, vv.Len())
		for _, k := range vv.keys {
			out[k] = Plain(vv.values[k])
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// TypeName names the JSON type of v.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case *Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// IsComposite reports whether v is an object or array.
func IsComposite(v any) bool {
	switch v.(type) {
	case *Object, []any:
		return true
	}
	return false
}

// Equal compares two tree values structurally. Object key order is not
// significant; numbers compare by their literal text.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.keys {
			other, ok := bv.values[k]
			if !ok || !Equal(av.values[k], other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
