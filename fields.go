package groups

import "encoding/json"

// groupField binds a group document key to its normalizer and to the
// GroupFields slot it fills.
type groupField struct {
	key   string
	apply func(*GroupFields, any) *ValidationError
	get   func(GroupFields) (any, bool)
}

// groupFields lists the interpreted group keys. Any other key in a group
// entry is passed through untouched.
var groupFields = []groupField{
	{
		key: KeyIDPrefixes,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assign(NormalizePrefixes(raw), &f.IDPrefixes)
		},
		get: func(f GroupFields) (any, bool) { return f.IDPrefixes, f.IDPrefixes != nil },
	},
	{
		key: KeyAnchor,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeAnchor(raw), &f.Anchor)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.Anchor) },
	},
	{
		key: KeyOffsetX,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeOffset(raw), &f.OffsetX)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.OffsetX) },
	},
	{
		key: KeyOffsetY,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeOffset(raw), &f.OffsetY)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.OffsetY) },
	},
	{
		key: KeyPayloadJustification,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeJustification(raw), &f.PayloadJustification)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.PayloadJustification) },
	},
	{
		key: KeyMarkerLabelPosition,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeMarkerLabelPosition(raw), &f.MarkerLabelPosition)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.MarkerLabelPosition) },
	},
	{
		key: KeyControllerPreviewBoxMode,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizePreviewBoxMode(raw), &f.ControllerPreviewBoxMode)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.ControllerPreviewBoxMode) },
	},
	{
		key: KeyBackgroundColor,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeColor(raw), &f.BackgroundColor)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.BackgroundColor) },
	},
	{
		key: KeyBackgroundBorderColor,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeColor(raw), &f.BackgroundBorderColor)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.BackgroundBorderColor) },
	},
	{
		key: KeyBackgroundBorderWidth,
		apply: func(f *GroupFields, raw any) *ValidationError {
			return assignPtr(NormalizeBorderWidth(raw), &f.BackgroundBorderWidth)
		},
		get: func(f GroupFields) (any, bool) { return deref(f.BackgroundBorderWidth) },
	},
}

var groupFieldIndex = func() map[string]groupField {
	index := make(map[string]groupField, len(groupFields))
	for _, field := range groupFields {
		index[field.key] = field
	}
	return index
}()

// IsGroupField reports whether key is an interpreted group field.
func IsGroupField(key string) bool {
	_, ok := groupFieldIndex[key]
	return ok
}

// GroupFieldKeys returns the interpreted group keys in canonical order.
func GroupFieldKeys() []string {
	keys := make([]string, 0, len(groupFields))
	for _, field := range groupFields {
		keys = append(keys, field.key)
	}
	return keys
}

func assign[T any](outcome Outcome[T], dst *T) *ValidationError {
	if outcome.err != nil {
		return outcome.err
	}
	*dst = outcome.value
	return nil
}

func assignPtr[T any](outcome Outcome[T], dst **T) *ValidationError {
	if outcome.err != nil {
		return outcome.err
	}
	value := outcome.value
	*dst = &value
	return nil
}

func deref[T any](ptr *T) (any, bool) {
	if ptr == nil {
		return nil, false
	}
	return *ptr, true
}

// encodedField returns the serialized form of field key in fields.
func encodedField(fields GroupFields, field groupField) (json.RawMessage, bool) {
	value, ok := field.get(fields)
	if !ok {
		return nil, false
	}
	return mustMarshal(value), true
}
