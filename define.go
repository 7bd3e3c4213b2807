package groups

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/goliatone/go-overlay-groups/internal/decode"
)

// GroupDefinition is what a plugin declares for one of its groups.
type GroupDefinition struct {
	// MatchingPrefixes are unioned into the plugin's matchingPrefixes.
	MatchingPrefixes []string
	// IDPrefixes replaces the group's prefixes. Nil keeps the existing ones;
	// a new group must set it.
	IDPrefixes []PrefixSpec
	// Fields maps group document keys to loose values. Keys that are not
	// interpreted group fields are stored as passthrough data.
	Fields map[string]any
}

// DefineResult describes the outcome of DefineGroup.
type DefineResult struct {
	Document Document
	Changed  bool
	Created  bool
	// Plugin is the display name the entry is stored under.
	Plugin           string
	Group            GroupView
	MatchingPrefixes []string
	// Updated lists the keys whose stored value changed, sorted.
	Updated []string
}

// DefineGroup validates def strictly and applies it to the shipped document.
// Any value that does not normalize aborts with a *ValidationError and leaves
// doc untouched. Defining a group re-enables a disabled plugin entry.
func DefineGroup(doc Document, plugin, label string, def GroupDefinition) (DefineResult, error) {
	plugin = strings.TrimSpace(plugin)
	label = strings.TrimSpace(label)
	if plugin == "" {
		return DefineResult{}, invalidf("plugin", "plugin name is required")
	}
	if label == "" {
		return DefineResult{}, invalidf("group", "group label is required")
	}

	fields, extras, prefixes, err := normalizeDefinition(def)
	if err != nil {
		return DefineResult{}, err
	}
	var matching []string
	if def.MatchingPrefixes != nil {
		outcome := NormalizeMatchingPrefixes(def.MatchingPrefixes)
		if outcome.Err() != nil {
			return DefineResult{}, outcome.Err()
		}
		matching, _ = outcome.Value()
	}

	rawKey, entry, wasDisabled := findPlugin(doc, plugin)
	current, _ := Merge(doc, NewDocument()).Plugin(plugin)
	existing, exists := current.Group(label)

	group := GroupView{Label: label, Fields: existing.Fields, Extras: copyRaw(existing.Extras)}
	switch {
	case prefixes != nil:
		group.Fields.IDPrefixes = prefixes
	case !exists || len(group.Fields.IDPrefixes) == 0:
		return DefineResult{}, &ValidationError{
			Kind:    KeyIDPrefixes,
			Message: "a new group needs at least one id prefix",
			Err:     ErrEmptyPrefixes,
		}
	}
	overlayFields(&group.Fields, fields)
	for key, raw := range extras {
		if group.Extras == nil {
			group.Extras = map[string]json.RawMessage{}
		}
		group.Extras[key] = raw
	}

	union := unionPrefixes(current.MatchingPrefixes, matching)

	result := DefineResult{
		Plugin:           rawKey,
		Group:            group,
		MatchingPrefixes: union,
		Created:          !exists,
		Updated:          changedKeys(existing, group),
	}
	if !equalStrings(union, current.MatchingPrefixes) {
		result.Updated = append(result.Updated, KeyMatchingPrefixes)
		sort.Strings(result.Updated)
	}
	result.Changed = wasDisabled || !exists || len(result.Updated) > 0
	if !result.Changed {
		result.Document = doc
		return result, nil
	}

	entry.Delete(KeyDisabled)
	if len(union) > 0 {
		entry.Set(KeyMatchingPrefixes, mustMarshal(union))
	}
	groupsObject := decode.NewObject()
	if raw, ok := entry.Get(KeyIDPrefixGroups); ok {
		if object, ok := objectOf(raw); ok {
			groupsObject = object
		}
	}
	groupsObject.Set(label, group.encode())
	encodedGroups, err := (Document{entries: groupsObject}).MarshalJSON()
	if err != nil {
		return DefineResult{}, err
	}
	entry.Set(KeyIDPrefixGroups, encodedGroups)
	encodedEntry, err := (Document{entries: entry}).MarshalJSON()
	if err != nil {
		return DefineResult{}, err
	}
	result.Document = doc.With(rawKey, encodedEntry)
	return result, nil
}

// normalizeDefinition is the strict pass: the first invalid value fails.
func normalizeDefinition(def GroupDefinition) (GroupFields, map[string]json.RawMessage, []PrefixEntry, error) {
	var fields GroupFields
	var extras map[string]json.RawMessage
	var prefixes []PrefixEntry

	if def.IDPrefixes != nil {
		entries, err := ParsePrefixSpecs(def.IDPrefixes)
		if err != nil {
			return GroupFields{}, nil, nil, err
		}
		prefixes = entries
	}
	for _, key := range sortedKeys(def.Fields) {
		value := def.Fields[key]
		switch {
		case key == KeyDisabled:
			return GroupFields{}, nil, nil, invalidf(key, "disabled cannot be authored; remove the group from the user layer instead")
		case key == KeyIDPrefixes:
			if prefixes != nil {
				continue
			}
			outcome := NormalizePrefixes(looseList(value))
			if outcome.Err() != nil {
				return GroupFields{}, nil, nil, outcome.Err()
			}
			prefixes, _ = outcome.Value()
		case IsGroupField(key):
			if err := groupFieldIndex[key].apply(&fields, value); err != nil {
				return GroupFields{}, nil, nil, err
			}
		case IsMetaKey(key):
			return GroupFields{}, nil, nil, invalidf(key, "keys starting with _ are reserved")
		default:
			raw, err := json.Marshal(value)
			if err != nil {
				return GroupFields{}, nil, nil, invalidf(key, "cannot encode value: %v", err)
			}
			if extras == nil {
				extras = map[string]json.RawMessage{}
			}
			extras[key] = raw
		}
	}
	return fields, extras, prefixes, nil
}

// looseList widens typed string slices so NormalizePrefixes accepts them.
func looseList(value any) any {
	if items, ok := value.([]string); ok {
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, item)
		}
		return out
	}
	return value
}

// findPlugin returns the stored key and a copy of the entry for plugin. A
// missing or malformed entry yields a new, empty one under plugin.
func findPlugin(doc Document, plugin string) (string, *decode.Object, bool) {
	canonical := Fold(plugin)
	key := plugin
	var found json.RawMessage
	doc.pairs(func(k string, raw json.RawMessage) {
		if !IsMetaKey(k) && Fold(k) == canonical {
			key, found = k, raw
		}
	})
	if found == nil {
		return key, decode.NewObject(), false
	}
	entry, ok := objectOf(found)
	if !ok {
		return key, decode.NewObject(), false
	}
	return key, decode.Clone(entry), isDisabled(entry)
}

func unionPrefixes(existing, added []string) []string {
	if existing == nil && len(added) == 0 {
		return nil
	}
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]struct{}, len(existing)+len(added))
	for _, source := range [][]string{existing, added} {
		for _, prefix := range source {
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			out = append(out, prefix)
		}
	}
	return out
}

func changedKeys(before, after GroupView) []string {
	var keys []string
	for _, field := range groupFields {
		old, hadOld := encodedField(before.Fields, field)
		next, hasNext := encodedField(after.Fields, field)
		if hadOld != hasNext || (hasNext && !sameJSON(old, next)) {
			keys = append(keys, field.key)
		}
	}
	for _, key := range sortedKeys(after.Extras) {
		if old, ok := before.Extras[key]; !ok || !sameJSON(old, after.Extras[key]) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// overlayFields copies every field set in src over dst, except idPrefixes.
func overlayFields(dst *GroupFields, src GroupFields) {
	if src.Anchor != nil {
		dst.Anchor = src.Anchor
	}
	if src.OffsetX != nil {
		dst.OffsetX = src.OffsetX
	}
	if src.OffsetY != nil {
		dst.OffsetY = src.OffsetY
	}
	if src.PayloadJustification != nil {
		dst.PayloadJustification = src.PayloadJustification
	}
	if src.MarkerLabelPosition != nil {
		dst.MarkerLabelPosition = src.MarkerLabelPosition
	}
	if src.ControllerPreviewBoxMode != nil {
		dst.ControllerPreviewBoxMode = src.ControllerPreviewBoxMode
	}
	if src.BackgroundColor != nil {
		dst.BackgroundColor = src.BackgroundColor
	}
	if src.BackgroundBorderColor != nil {
		dst.BackgroundBorderColor = src.BackgroundBorderColor
	}
	if src.BackgroundBorderWidth != nil {
		dst.BackgroundBorderWidth = src.BackgroundBorderWidth
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func copyRaw(src map[string]json.RawMessage) map[string]json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(map[string]json.RawMessage, len(src))
	for key, raw := range src {
		dst[key] = raw
	}
	return dst
}
