package groups

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/goliatone/go-overlay-groups/internal/decode"
)

// Document keys understood by the engines.
const (
	KeyDisabled                 = "disabled"
	KeyMatchingPrefixes         = "matchingPrefixes"
	KeyIDPrefixGroups           = "idPrefixGroups"
	KeyIDPrefixes               = "idPrefixes"
	KeyAnchor                   = "idPrefixGroupAnchor"
	KeyOffsetX                  = "offsetX"
	KeyOffsetY                  = "offsetY"
	KeyPayloadJustification     = "payloadJustification"
	KeyMarkerLabelPosition      = "markerLabelPosition"
	KeyControllerPreviewBoxMode = "controllerPreviewBoxMode"
	KeyBackgroundColor          = "backgroundColor"
	KeyBackgroundBorderColor    = "backgroundBorderColor"
	KeyBackgroundBorderWidth    = "backgroundBorderWidth"
	KeyOverrides                = "overrides"
	KeyEditNonce                = "_edit_nonce"
)

// IsMetaKey reports whether a top-level key is metadata rather than a plugin
// entry.
func IsMetaKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Document is one configuration layer as stored on disk: plugin entries keyed
// by display name in declaration order, plus "_" metadata keys. Values are
// kept undecoded. Methods never mutate the receiver.
type Document struct {
	entries *decode.Object
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{entries: decode.NewObject()}
}

// ParseDocument decodes data as a document. Comments are tolerated; anything
// that is not a JSON object yields a *DocumentError.
func ParseDocument(data []byte) (Document, error) {
	return ParseLayerDocument(LayerUnknown, "", data)
}

// ParseLayerDocument is ParseDocument with the layer and path recorded on
// errors.
func ParseLayerDocument(layer Layer, path string, data []byte) (Document, error) {
	object, err := decode.Default.Decode(decode.Context{Path: path, Layer: layer.String()}, data)
	if err != nil {
		if errors.Is(err, decode.ErrNotObject) {
			err = ErrNotObject
		}
		return Document{}, &DocumentError{Layer: layer, Path: path, Err: err}
	}
	return Document{entries: object}, nil
}

// MustParseDocument parses a literal document and panics on error. Intended
// for tests and examples.
func MustParseDocument(data string) Document {
	doc, err := ParseDocument([]byte(data))
	if err != nil {
		panic(err)
	}
	return doc
}

// Len returns the number of top-level keys.
func (d Document) Len() int {
	if d.entries == nil {
		return 0
	}
	return d.entries.Len()
}

// Keys returns the top-level keys in order.
func (d Document) Keys() []string {
	if d.entries == nil {
		return nil
	}
	keys := make([]string, 0, d.entries.Len())
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Get returns a copy of the raw value stored under key.
func (d Document) Get(key string) (json.RawMessage, bool) {
	if d.entries == nil {
		return nil, false
	}
	raw, ok := d.entries.Get(key)
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

// With returns a copy of d with key set to raw. An existing key keeps its
// position.
func (d Document) With(key string, raw json.RawMessage) Document {
	out := decode.Clone(d.entries)
	out.Set(key, append(json.RawMessage(nil), raw...))
	return Document{entries: out}
}

// Without returns a copy of d with key removed.
func (d Document) Without(key string) Document {
	out := decode.Clone(d.entries)
	out.Delete(key)
	return Document{entries: out}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	return Document{entries: decode.Clone(d.entries)}
}

// MarshalJSON encodes the document preserving key order. An empty document
// encodes as {}.
func (d Document) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	if d.entries != nil {
		first := true
		for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
			if !first {
				buffer.WriteByte(',')
			}
			first = false
			key, err := decode.Marshal(pair.Key)
			if err != nil {
				return nil, err
			}
			buffer.Write(key)
			buffer.WriteByte(':')
			value := pair.Value
			if len(bytes.TrimSpace(value)) == 0 {
				value = json.RawMessage("null")
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, value); err != nil {
				return nil, err
			}
			buffer.Write(compact.Bytes())
		}
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Document) UnmarshalJSON(data []byte) error {
	object, err := decode.ParseObject(data)
	if err != nil {
		if errors.Is(err, decode.ErrNotObject) {
			return ErrNotObject
		}
		return err
	}
	d.entries = object
	return nil
}

// Indent encodes the document with two-space indentation and a trailing
// newline, the form written to disk.
func (d Document) Indent() ([]byte, error) {
	compact, err := d.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Equal reports whether both documents hold the same data, ignoring key order
// and formatting.
func (d Document) Equal(other Document) bool {
	left, err := d.MarshalJSON()
	if err != nil {
		return false
	}
	right, err := other.MarshalJSON()
	if err != nil {
		return false
	}
	a, errA := decode.Canonical(left)
	b, errB := decode.Canonical(right)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

func (d Document) String() string {
	out, err := d.MarshalJSON()
	if err != nil {
		return "<invalid document>"
	}
	return string(out)
}

func (d Document) pairs(fn func(key string, raw json.RawMessage)) {
	if d.entries == nil {
		return
	}
	for pair := d.entries.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// sortedKeys orders keys case-insensitively, breaking ties by raw key so the
// result is total.
func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		left, right := Fold(keys[i]), Fold(keys[j])
		if left != right {
			return left < right
		}
		return keys[i] < keys[j]
	})
}

// sortedDocument builds a document from a map with keys sorted
// case-insensitively.
func sortedDocument(values map[string]json.RawMessage) Document {
	out := decode.NewObject()
	for _, key := range sortedKeys(values) {
		out.Set(key, values[key])
	}
	return Document{entries: out}
}

func encodeSorted(values map[string]json.RawMessage) json.RawMessage {
	raw, err := sortedDocument(values).MarshalJSON()
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func objectOf(raw json.RawMessage) (*decode.Object, bool) {
	if !decode.IsObject(raw) {
		return nil, false
	}
	object, err := decode.ParseObject(raw)
	if err != nil {
		return nil, false
	}
	return object, true
}

func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}
