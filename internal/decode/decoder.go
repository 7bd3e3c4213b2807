package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/jsonc"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotObject reports a payload whose root is not a JSON object.
var ErrNotObject = errors.New("value is not a JSON object")

// Object is an order-preserving JSON object with undecoded values.
type Object = orderedmap.OrderedMap[string, json.RawMessage]

// NewObject returns an empty Object.
func NewObject() *Object {
	return orderedmap.New[string, json.RawMessage]()
}

// Context identifies the payload being decoded for error messages and hooks.
type Context struct {
	Path  string
	Layer string
}

// PreHook lets callers rewrite the raw bytes before decoding.
type PreHook func(Context, []byte) ([]byte, error)

// DecoderOption configures a Decoder instance.
type DecoderOption func(*Decoder)

// Decoder converts document bytes into ordered objects.
type Decoder struct {
	preHooks []PreHook
}

// WithPreHook applies hook prior to decoding.
func WithPreHook(hook PreHook) DecoderOption {
	return func(d *Decoder) {
		if hook != nil {
			d.preHooks = append(d.preHooks, hook)
		}
	}
}

// WithComments strips // and /* */ comments and trailing commas before
// decoding, so hand-edited files still load.
func WithComments() DecoderOption {
	return WithPreHook(func(_ Context, data []byte) ([]byte, error) {
		return jsonc.ToJSON(data), nil
	})
}

// NewDecoder builds a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Default accepts comments, matching what editors tend to leave behind.
var Default = NewDecoder(WithComments())

// Decode runs the pre-hooks and parses data as a JSON object.
func (d *Decoder) Decode(ctx Context, data []byte) (*Object, error) {
	current := data
	for _, hook := range d.preHooks {
		next, err := hook(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("decode: pre-hook for %q failed: %w", ctx.Path, err)
		}
		if next != nil {
			current = next
		}
	}
	return ParseObject(current)
}

// ParseObject parses raw as a JSON object without running hooks. Keys keep
// their first-seen position; a duplicate key replaces the earlier value.
func ParseObject(raw []byte) (*Object, error) {
	trimmed := bytes.TrimSpace(raw)
	var probe json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, err
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	object := NewObject()
	if err := object.UnmarshalJSON(trimmed); err != nil {
		return nil, err
	}
	return object, nil
}

// IsObject reports whether raw holds a JSON object.
func IsObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

// Clone copies an object. Values are copied byte for byte.
func Clone(src *Object) *Object {
	out := NewObject()
	if src == nil {
		return out
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, append(json.RawMessage(nil), pair.Value...))
	}
	return out
}

// Canonical re-encodes raw so that values with the same meaning compare equal
// byte for byte: whitespace is dropped, object keys are sorted and number
// literals are kept as written.
func Canonical(raw []byte) (json.RawMessage, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return Marshal(value)
}

// Marshal encodes value without HTML escaping.
func Marshal(value any) (json.RawMessage, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buffer.Bytes(), "\n")), nil
}
