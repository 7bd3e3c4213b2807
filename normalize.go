package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Outcome is the result of a normalizer: a canonical value or the reason the
// input was rejected. Call sites decide whether a rejection is fatal.
type Outcome[T any] struct {
	value T
	err   *ValidationError
}

// Ok wraps a canonical value.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Invalid wraps a rejection.
func Invalid[T any](kind, format string, args ...any) Outcome[T] {
	return Outcome[T]{err: invalidf(kind, format, args...)}
}

func invalidOutcome[T any](err *ValidationError) Outcome[T] {
	return Outcome[T]{err: err}
}

// Value returns the canonical value and true, or the zero value and false.
func (o Outcome[T]) Value() (T, bool) {
	if o.err != nil {
		var zero T
		return zero, false
	}
	return o.value, true
}

// OK reports whether the input normalized.
func (o Outcome[T]) OK() bool { return o.err == nil }

// Err returns the rejection as an error, or nil.
func (o Outcome[T]) Err() error {
	if o.err == nil {
		return nil
	}
	return o.err
}

// Nullable holds a value that may be explicitly null. Valid is false for null.
type Nullable[T any] struct {
	Value T
	Valid bool
}

// Some returns a non-null Nullable.
func Some[T any](value T) Nullable[T] { return Nullable[T]{Value: value, Valid: true} }

// Null returns an explicit null.
func Null[T any]() Nullable[T] { return Nullable[T]{} }

// Get returns the value and whether it is non-null.
func (n Nullable[T]) Get() (T, bool) { return n.Value, n.Valid }

// Ptr returns a pointer to a copy of the value, or nil for null.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	value := n.Value
	return &value
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Anchor is the corner or edge a group is placed against.
type Anchor string

const (
	AnchorNW     Anchor = "nw"
	AnchorNE     Anchor = "ne"
	AnchorSW     Anchor = "sw"
	AnchorSE     Anchor = "se"
	AnchorCenter Anchor = "center"
	AnchorTop    Anchor = "top"
	AnchorBottom Anchor = "bottom"
	AnchorLeft   Anchor = "left"
	AnchorRight  Anchor = "right"
)

// Justification aligns payload text inside a group.
type Justification string

const (
	JustifyLeft   Justification = "left"
	JustifyCenter Justification = "center"
	JustifyRight  Justification = "right"
)

// MarkerLabelPosition places marker labels relative to their marker.
type MarkerLabelPosition string

const (
	MarkerBelow    MarkerLabelPosition = "below"
	MarkerAbove    MarkerLabelPosition = "above"
	MarkerCentered MarkerLabelPosition = "centered"
)

// PreviewBoxMode selects how the controller preview box is sized.
type PreviewBoxMode string

const (
	PreviewLast PreviewBoxMode = "last"
	PreviewMax  PreviewBoxMode = "max"
)

// Defaults applied by consumers when a merged group omits a field.
const (
	DefaultAnchor              = AnchorNW
	DefaultJustification       = JustifyLeft
	DefaultMarkerLabelPosition = MarkerBelow
	DefaultPreviewBoxMode      = PreviewLast
	MaxBorderWidth             = 10
)

var anchorAliases = map[string]Anchor{
	"first":    AnchorNW,
	"centroid": AnchorCenter,
}

var anchors = enumSet(AnchorNW, AnchorNE, AnchorSW, AnchorSE, AnchorCenter, AnchorTop, AnchorBottom, AnchorLeft, AnchorRight)
var justifications = enumSet(JustifyLeft, JustifyCenter, JustifyRight)
var markerPositions = enumSet(MarkerBelow, MarkerAbove, MarkerCentered)
var previewModes = enumSet(PreviewLast, PreviewMax)

func enumSet[T ~string](values ...T) map[string]T {
	set := make(map[string]T, len(values))
	for _, value := range values {
		set[string(value)] = value
	}
	return set
}

// NormalizeAnchor accepts one of the nine anchor tokens in any casing plus
// the legacy aliases "first" and "centroid".
func NormalizeAnchor(raw any) Outcome[Anchor] {
	token, ok := enumToken(raw)
	if !ok {
		return Invalid[Anchor]("anchor", "expected a string, got %s", describeLoose(raw))
	}
	if alias, ok := anchorAliases[token]; ok {
		return Ok(alias)
	}
	if anchor, ok := anchors[token]; ok {
		return Ok(anchor)
	}
	return Invalid[Anchor]("anchor", "unsupported anchor %q", token)
}

// NormalizeJustification accepts left, center or right.
func NormalizeJustification(raw any) Outcome[Justification] {
	return normalizeEnum(raw, "payloadJustification", justifications)
}

// NormalizeMarkerLabelPosition accepts below, above or centered.
func NormalizeMarkerLabelPosition(raw any) Outcome[MarkerLabelPosition] {
	return normalizeEnum(raw, "markerLabelPosition", markerPositions)
}

// NormalizePreviewBoxMode accepts last or max.
func NormalizePreviewBoxMode(raw any) Outcome[PreviewBoxMode] {
	return normalizeEnum(raw, "controllerPreviewBoxMode", previewModes)
}

func normalizeEnum[T ~string](raw any, kind string, allowed map[string]T) Outcome[T] {
	token, ok := enumToken(raw)
	if !ok {
		return Invalid[T](kind, "expected a string, got %s", describeLoose(raw))
	}
	if value, ok := allowed[token]; ok {
		return Ok(value)
	}
	return Invalid[T](kind, "unsupported value %q", token)
}

func enumToken(raw any) (string, bool) {
	switch typed := raw.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(typed)), true
	case Anchor:
		return strings.ToLower(strings.TrimSpace(string(typed))), true
	case Justification:
		return strings.ToLower(strings.TrimSpace(string(typed))), true
	case MarkerLabelPosition:
		return strings.ToLower(strings.TrimSpace(string(typed))), true
	case PreviewBoxMode:
		return strings.ToLower(strings.TrimSpace(string(typed))), true
	default:
		return "", false
	}
}

// NormalizeOffset accepts any finite number.
func NormalizeOffset(raw any) Outcome[float64] {
	value, ok := numberValue(raw)
	if !ok {
		return Invalid[float64]("offset", "expected a number, got %s", describeLoose(raw))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Invalid[float64]("offset", "offset must be finite, got %v", value)
	}
	return Ok(value)
}

// NormalizeBorderWidth accepts a number in [0, MaxBorderWidth] and truncates
// it to an integer. The range is checked before truncation. Null clears the
// width.
func NormalizeBorderWidth(raw any) Outcome[Nullable[int]] {
	switch typed := raw.(type) {
	case nil:
		return Ok(Null[int]())
	case Nullable[int]:
		if !typed.Valid {
			return Ok(Null[int]())
		}
		raw = typed.Value
	}
	value, ok := numberValue(raw)
	if !ok {
		return Invalid[Nullable[int]]("backgroundBorderWidth", "expected a number, got %s", describeLoose(raw))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Invalid[Nullable[int]]("backgroundBorderWidth", "width must be finite, got %v", value)
	}
	if value < 0 || value > MaxBorderWidth {
		return Invalid[Nullable[int]]("backgroundBorderWidth", "width %v outside [0,%d]", value, MaxBorderWidth)
	}
	return Ok(Some(int(value)))
}

// NormalizeColor accepts #RRGGBB or #AARRGGBB (the '#' is optional and the
// result is uppercased) or a bareword color name, which is kept unchanged.
// Null and the empty string clear the color.
func NormalizeColor(raw any) Outcome[Nullable[string]] {
	var text string
	switch typed := raw.(type) {
	case nil:
		return Ok(Null[string]())
	case Nullable[string]:
		if !typed.Valid {
			return Ok(Null[string]())
		}
		text = typed.Value
	case string:
		text = typed
	default:
		return Invalid[Nullable[string]]("color", "expected a string, got %s", describeLoose(raw))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Ok(Null[string]())
	}
	if hex, hasHash := strings.CutPrefix(text, "#"); hasHash {
		if len(hex) != 6 && len(hex) != 8 {
			return Invalid[Nullable[string]]("color", "hex color %q must have 6 or 8 digits", text)
		}
		if !isHex(hex) {
			return Invalid[Nullable[string]]("color", "hex color %q has non-hex digits", text)
		}
		return Ok(Some("#" + strings.ToUpper(hex)))
	}
	if (len(text) == 6 || len(text) == 8) && isHex(text) {
		return Ok(Some("#" + strings.ToUpper(text)))
	}
	if !isBareword(text) {
		return Invalid[Nullable[string]]("color", "color name %q must start with a letter and contain only letters, digits or '_'", text)
	}
	return Ok(Some(text))
}

// NormalizePrefixes parses an idPrefixes list. Items are bare strings
// (startsWith) or {"value", "matchMode"} objects. Duplicate keys keep the first
// occurrence and an empty list is rejected.
func NormalizePrefixes(raw any) Outcome[[]PrefixEntry] {
	if existing, ok := raw.([]PrefixEntry); ok {
		items := make([]any, 0, len(existing))
		for _, entry := range existing {
			items = append(items, map[string]any{"value": entry.value, "matchMode": entry.mode.String()})
		}
		raw = items
	}
	items, ok := raw.([]any)
	if !ok {
		return Invalid[[]PrefixEntry]("idPrefixes", "expected a list, got %s", describeLoose(raw))
	}
	entries := make([]PrefixEntry, 0, len(items))
	seen := make(map[PrefixKey]struct{}, len(items))
	for _, item := range items {
		entry, err := parsePrefixItem(item)
		if err != nil {
			return invalidOutcome[[]PrefixEntry](err)
		}
		if _, dup := seen[entry.Key()]; dup {
			continue
		}
		seen[entry.Key()] = struct{}{}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return invalidOutcome[[]PrefixEntry](&ValidationError{Kind: "idPrefixes", Message: "at least one prefix is required", Err: ErrEmptyPrefixes})
	}
	return Ok(entries)
}

// NormalizeMatchingPrefixes case-folds and deduplicates a plugin's
// matchingPrefixes list, keeping the first occurrence. Blank items are dropped.
func NormalizeMatchingPrefixes(raw any) Outcome[[]string] {
	var items []any
	switch typed := raw.(type) {
	case []any:
		items = typed
	case []string:
		items = make([]any, 0, len(typed))
		for _, item := range typed {
			items = append(items, item)
		}
	default:
		return Invalid[[]string]("matchingPrefixes", "expected a list, got %s", describeLoose(raw))
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			return Invalid[[]string]("matchingPrefixes", "prefix must be a string, got %s", describeLoose(item))
		}
		folded := Fold(strings.TrimSpace(text))
		if folded == "" {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, folded)
	}
	return Ok(out)
}

func numberValue(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case json.Number:
		value, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return value, true
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func isHex(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return value != ""
}

func isBareword(value string) bool {
	for i, r := range value {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 {
			if !isLetter {
				return false
			}
			continue
		}
		if !isLetter && !(r >= '0' && r <= '9') && r != '_' {
			return false
		}
	}
	return value != ""
}

// decodeLoose decodes raw JSON keeping numbers as json.Number.
func decodeLoose(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

func describeLoose(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("string %q", typed)
	case bool:
		return fmt.Sprintf("bool %t", typed)
	case json.Number:
		return fmt.Sprintf("number %s", typed)
	case map[string]any:
		return "object"
	case []any:
		return "list"
	default:
		return fmt.Sprintf("%T", value)
	}
}
