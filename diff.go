package groups

import (
	"bytes"
	"encoding/json"
	"reflect"
)

var disabledEntry = json.RawMessage(`{"disabled":true}`)

// Diff returns the minimal user document that regenerates merged when merged
// over shipped. merged is normalized first; an idPrefixes list in it that
// cannot be parsed is returned as a *ValidationError.
func Diff(shipped, merged Document, opts ...Option) (Document, error) {
	view, err := Normalize(merged, opts...)
	if err != nil {
		return Document{}, err
	}
	return DiffView(shipped, view, opts...), nil
}

// DiffView is Diff over an already merged view.
//
// Only normalized values are compared, so a field whose merged value equals
// the shipped value is never emitted. Every emitted object has its keys sorted
// case-insensitively. Metadata equal to the shipped value is dropped. A view
// cannot express removing a shipped field, extra or matchingPrefixes list
// without disabling its owner, so such differences are not emitted.
func DiffView(shipped Document, merged MergedView, opts ...Option) Document {
	cfg := newConfig(opts)
	base := Merge(shipped, NewDocument(), WithLogger(cfg.logger))

	out := map[string]json.RawMessage{}
	for _, plugin := range base.Plugins {
		if _, ok := merged.Plugin(plugin.Name); !ok {
			out[plugin.Name] = disabledEntry
		}
	}
	for _, plugin := range merged.Plugins {
		previous, ok := base.Plugin(plugin.Name)
		if !ok {
			out[plugin.Name] = plugin.encode()
			continue
		}
		if entry := diffPlugin(previous, plugin); len(entry) > 0 {
			out[previous.Name] = encodeSorted(entry)
		}
	}
	shippedMeta := metaOf(shipped)
	for key, raw := range merged.Meta {
		if previous, ok := shippedMeta[key]; ok && bytes.Equal(previous, raw) {
			continue
		}
		out[key] = raw
	}
	if cfg.hasNonce {
		out[KeyEditNonce] = mustMarshal(cfg.editNonce)
	}
	return sortedDocument(out)
}

func diffPlugin(shipped, merged PluginView) map[string]json.RawMessage {
	entry := map[string]json.RawMessage{}
	if merged.MatchingPrefixes != nil && !reflect.DeepEqual(shipped.MatchingPrefixes, merged.MatchingPrefixes) {
		entry[KeyMatchingPrefixes] = mustMarshal(merged.MatchingPrefixes)
	}
	diffExtras(shipped.Extras, merged.Extras, entry)

	groups := map[string]json.RawMessage{}
	for _, group := range shipped.Groups {
		if _, ok := merged.Group(group.Label); !ok {
			groups[group.Label] = disabledEntry
		}
	}
	for _, group := range merged.Groups {
		previous, ok := shipped.Group(group.Label)
		if !ok {
			groups[group.Label] = group.encode()
			continue
		}
		if fields := diffGroup(previous, group); len(fields) > 0 {
			groups[group.Label] = encodeSorted(fields)
		}
	}
	if len(groups) > 0 {
		entry[KeyIDPrefixGroups] = encodeSorted(groups)
	}
	return entry
}

func diffGroup(shipped, merged GroupView) map[string]json.RawMessage {
	entry := map[string]json.RawMessage{}
	for _, field := range groupFields {
		value, ok := encodedField(merged.Fields, field)
		if !ok {
			continue
		}
		if previous, had := encodedField(shipped.Fields, field); had && bytes.Equal(previous, value) {
			continue
		}
		entry[field.key] = value
	}
	diffExtras(shipped.Extras, merged.Extras, entry)
	return entry
}

func diffExtras(shipped, merged map[string]json.RawMessage, into map[string]json.RawMessage) {
	for key, value := range merged {
		if previous, ok := shipped[key]; ok && sameJSON(previous, value) {
			continue
		}
		into[key] = value
	}
}

// IsEmptyDiff reports whether every plugin entry of diff is an empty object.
// Metadata keys are ignored. A diff holding disabled markers or groups is not
// empty.
func IsEmptyDiff(diff Document) bool {
	empty := true
	diff.pairs(func(key string, raw json.RawMessage) {
		if !empty || IsMetaKey(key) {
			return
		}
		entry, ok := objectOf(raw)
		if !ok || entry.Len() > 0 {
			empty = false
		}
	})
	return empty
}

// Shrink re-minimizes user against shipped, dropping overrides that now
// repeat shipped values.
func Shrink(shipped, user Document, opts ...Option) Document {
	cfg := newConfig(opts)
	return DiffView(shipped, Merge(shipped, user, WithLogger(cfg.logger)), opts...)
}
