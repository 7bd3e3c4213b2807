package groups

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestNormalizeAnchor(t *testing.T) {
	cases := []struct {
		input any
		want  Anchor
		ok    bool
	}{
		{"nw", AnchorNW, true},
		{" SE ", AnchorSE, true},
		{"Center", AnchorCenter, true},
		{"first", AnchorNW, true},
		{"centroid", AnchorCenter, true},
		{"middle", "", false},
		{json.Number("3"), "", false},
		{nil, "", false},
	}
	for _, tc := range cases {
		outcome := NormalizeAnchor(tc.input)
		got, ok := outcome.Value()
		if ok != tc.ok {
			t.Fatalf("NormalizeAnchor(%v) ok=%v, want %v (err=%v)", tc.input, ok, tc.ok, outcome.Err())
		}
		if ok && got != tc.want {
			t.Fatalf("NormalizeAnchor(%v) = %q, want %q", tc.input, got, tc.want)
		}
		if !ok && !IsValidationError(outcome.Err()) {
			t.Fatalf("expected ValidationError, got %v", outcome.Err())
		}
	}
}

func TestNormalizeEnums(t *testing.T) {
	if got, _ := NormalizeJustification("CENTER").Value(); got != JustifyCenter {
		t.Fatalf("justification: got %q", got)
	}
	if NormalizeJustification("justify").OK() {
		t.Fatalf("justification: expected rejection")
	}
	if got, _ := NormalizeMarkerLabelPosition("Above").Value(); got != MarkerAbove {
		t.Fatalf("marker: got %q", got)
	}
	if NormalizeMarkerLabelPosition("beside").OK() {
		t.Fatalf("marker: expected rejection")
	}
	if got, _ := NormalizePreviewBoxMode("max").Value(); got != PreviewMax {
		t.Fatalf("preview: got %q", got)
	}
	if NormalizePreviewBoxMode(1).OK() {
		t.Fatalf("preview: expected rejection of non-string")
	}
}

func TestNormalizeOffset(t *testing.T) {
	cases := []struct {
		input any
		want  float64
		ok    bool
	}{
		{json.Number("10"), 10, true},
		{json.Number("-5.5"), -5.5, true},
		{3, 3, true},
		{2.25, 2.25, true},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
		{"4", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := NormalizeOffset(tc.input).Value()
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("NormalizeOffset(%v) = (%v, %v), want (%v, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeBorderWidth(t *testing.T) {
	cases := []struct {
		input any
		want  Nullable[int]
		ok    bool
	}{
		{json.Number("3"), Some(3), true},
		{3.7, Some(3), true},
		{0, Some(0), true},
		{10, Some(10), true},
		{nil, Null[int](), true},
		{11, Nullable[int]{}, false},
		{-1, Nullable[int]{}, false},
		{10.5, Nullable[int]{}, false},
		{-0.5, Nullable[int]{}, false},
		{9.9, Some(9), true},
		{"3", Nullable[int]{}, false},
	}
	for _, tc := range cases {
		got, ok := NormalizeBorderWidth(tc.input).Value()
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("NormalizeBorderWidth(%v) = (%v, %v), want (%v, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeColor(t *testing.T) {
	cases := []struct {
		input any
		want  Nullable[string]
		ok    bool
	}{
		{"#aa112233", Some("#AA112233"), true},
		{"#a1b2c3", Some("#A1B2C3"), true},
		{"a1b2c3", Some("#A1B2C3"), true},
		{"red", Some("red"), true},
		{"Dark_Blue2", Some("Dark_Blue2"), true},
		{nil, Null[string](), true},
		{"", Null[string](), true},
		{"#abc", Nullable[string]{}, false},
		{"#GGHHII", Nullable[string]{}, false},
		{"1red", Nullable[string]{}, false},
		{"dark-blue", Nullable[string]{}, false},
		{json.Number("5"), Nullable[string]{}, false},
	}
	for _, tc := range cases {
		got, ok := NormalizeColor(tc.input).Value()
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("NormalizeColor(%v) = (%v, %v), want (%v, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizersAreIdempotent(t *testing.T) {
	for _, input := range []any{"first", "centroid", "SE", "top"} {
		once, _ := NormalizeAnchor(input).Value()
		twice, ok := NormalizeAnchor(once).Value()
		if !ok || once != twice {
			t.Fatalf("anchor %v: %q then %q", input, once, twice)
		}
	}
	for _, input := range []any{"#aabbcc", "ffeeddcc", "red", nil} {
		once, _ := NormalizeColor(input).Value()
		twice, ok := NormalizeColor(once).Value()
		if !ok || once != twice {
			t.Fatalf("color %v: %v then %v", input, once, twice)
		}
	}
	for _, input := range []any{json.Number("9.9"), nil, 0} {
		once, _ := NormalizeBorderWidth(input).Value()
		twice, ok := NormalizeBorderWidth(once).Value()
		if !ok || once != twice {
			t.Fatalf("border width %v: %v then %v", input, once, twice)
		}
	}
	prefixes, _ := NormalizePrefixes([]any{"a-", map[string]any{"value": "b", "matchMode": "exact"}}).Value()
	again, ok := NormalizePrefixes(prefixes).Value()
	if !ok || !reflect.DeepEqual(prefixes, again) {
		t.Fatalf("prefixes: %v then %v", prefixes, again)
	}
}

func TestNormalizePrefixes(t *testing.T) {
	entries, ok := NormalizePrefixes([]any{
		"foo-",
		map[string]any{"value": "FOO-", "matchMode": "startsWith"},
		map[string]any{"value": "foo-", "matchMode": "exact"},
	}).Value()
	if !ok {
		t.Fatalf("expected prefixes to normalize")
	}
	if len(entries) != 2 || entries[0].Value() != "foo-" || entries[1].Mode() != MatchExact {
		t.Fatalf("unexpected entries: %v", entries)
	}

	outcome := NormalizePrefixes([]any{})
	if outcome.OK() || !errors.Is(outcome.Err(), ErrEmptyPrefixes) {
		t.Fatalf("expected ErrEmptyPrefixes, got %v", outcome.Err())
	}
	if NormalizePrefixes("foo-").OK() {
		t.Fatalf("expected a bare string to be rejected")
	}
	if NormalizePrefixes([]any{"ok", json.Number("4")}).OK() {
		t.Fatalf("expected a numeric item to be rejected")
	}
	if NormalizePrefixes([]any{map[string]any{"matchMode": "exact"}}).OK() {
		t.Fatalf("expected an object without value to be rejected")
	}
}

func TestNormalizeMatchingPrefixes(t *testing.T) {
	got, ok := NormalizeMatchingPrefixes([]any{"Foo-", "foo-", " ", "BAR-"}).Value()
	if !ok {
		t.Fatalf("expected matching prefixes to normalize")
	}
	if !reflect.DeepEqual(got, []string{"foo-", "bar-"}) {
		t.Fatalf("unexpected matching prefixes %v", got)
	}
	if NormalizeMatchingPrefixes([]any{1}).OK() {
		t.Fatalf("expected non-string item to be rejected")
	}
}
