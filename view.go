package groups

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/goliatone/go-overlay-groups/internal/decode"
)

// GroupFields holds the normalized, optional fields of one group. A nil
// pointer means the merged view does not set the field and consumers apply
// the default.
type GroupFields struct {
	IDPrefixes               []PrefixEntry
	Anchor                   *Anchor
	OffsetX                  *float64
	OffsetY                  *float64
	PayloadJustification     *Justification
	MarkerLabelPosition      *MarkerLabelPosition
	ControllerPreviewBoxMode *PreviewBoxMode
	BackgroundColor          *Nullable[string]
	BackgroundBorderColor    *Nullable[string]
	BackgroundBorderWidth    *Nullable[int]
}

// GroupView is one group of a merged plugin.
type GroupView struct {
	Label  string
	Fields GroupFields
	Extras map[string]json.RawMessage
}

// PluginView is one plugin of a merged view.
type PluginView struct {
	Name string
	// MatchingPrefixes is nil when neither layer sets it.
	MatchingPrefixes []string
	Groups           []GroupView
	Extras           map[string]json.RawMessage
}

// CanonicalName returns the case-folded plugin name used for lookups.
func (p PluginView) CanonicalName() string { return Fold(p.Name) }

// Group returns the group with the given label.
func (p PluginView) Group(label string) (GroupView, bool) {
	for _, group := range p.Groups {
		if group.Label == label {
			return group, true
		}
	}
	return GroupView{}, false
}

// MergedView is the normalized result of merging the shipped and user
// documents.
type MergedView struct {
	Plugins []PluginView
	// Meta carries the "_" keys of both documents verbatim. User values win.
	Meta map[string]json.RawMessage
}

// Plugin looks a plugin up by name, case-insensitively.
func (v MergedView) Plugin(name string) (PluginView, bool) {
	canonical := Fold(name)
	for _, plugin := range v.Plugins {
		if plugin.CanonicalName() == canonical {
			return plugin, true
		}
	}
	return PluginView{}, false
}

// Equal compares two views by content. Plugins, groups and extras are matched
// by key, so their order does not matter; prefix lists are compared in order.
func (v MergedView) Equal(other MergedView) bool {
	if !equalRawMaps(v.Meta, other.Meta) {
		return false
	}
	if len(v.Plugins) != len(other.Plugins) {
		return false
	}
	for _, plugin := range v.Plugins {
		match, ok := other.Plugin(plugin.Name)
		if !ok || !plugin.Equal(match) {
			return false
		}
	}
	return true
}

// Equal compares two plugin views by content. Names compare case-insensitively.
func (p PluginView) Equal(other PluginView) bool {
	if p.CanonicalName() != other.CanonicalName() {
		return false
	}
	if !reflect.DeepEqual(p.MatchingPrefixes, other.MatchingPrefixes) {
		return false
	}
	if !equalRawMaps(p.Extras, other.Extras) {
		return false
	}
	if len(p.Groups) != len(other.Groups) {
		return false
	}
	for _, group := range p.Groups {
		match, ok := other.Group(group.Label)
		if !ok || !group.Equal(match) {
			return false
		}
	}
	return true
}

// Equal compares two group views by content.
func (g GroupView) Equal(other GroupView) bool {
	return g.Label == other.Label &&
		reflect.DeepEqual(g.Fields, other.Fields) &&
		equalRawMaps(g.Extras, other.Extras)
}

func equalRawMaps(a, b map[string]json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for key, left := range a {
		right, ok := b[key]
		if !ok || !sameJSON(left, right) {
			return false
		}
	}
	return true
}

// sameJSON compares two raw values ignoring whitespace and object key order.
func sameJSON(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	left, errA := decode.Canonical(a)
	right, errB := decode.Canonical(b)
	return errA == nil && errB == nil && bytes.Equal(left, right)
}

// Document serializes the view in the on-disk document shape. Plugins keep
// view order; keys inside each entry are sorted.
func (v MergedView) Document() Document {
	out := decode.NewObject()
	for _, plugin := range v.Plugins {
		out.Set(plugin.Name, plugin.encode())
	}
	for _, key := range sortedKeys(v.Meta) {
		out.Set(key, v.Meta[key])
	}
	return Document{entries: out}
}

func (p PluginView) entryMap() map[string]json.RawMessage {
	entry := make(map[string]json.RawMessage, len(p.Extras)+2)
	for key, raw := range p.Extras {
		entry[key] = raw
	}
	if p.MatchingPrefixes != nil {
		entry[KeyMatchingPrefixes] = mustMarshal(p.MatchingPrefixes)
	}
	if len(p.Groups) > 0 {
		groups := make(map[string]json.RawMessage, len(p.Groups))
		for _, group := range p.Groups {
			groups[group.Label] = group.encode()
		}
		entry[KeyIDPrefixGroups] = encodeSorted(groups)
	}
	return entry
}

func (p PluginView) encode() json.RawMessage {
	return encodeSorted(p.entryMap())
}

func (g GroupView) entryMap() map[string]json.RawMessage {
	entry := make(map[string]json.RawMessage, len(g.Extras)+len(groupFields))
	for key, raw := range g.Extras {
		entry[key] = raw
	}
	for _, field := range groupFields {
		if raw, ok := encodedField(g.Fields, field); ok {
			entry[field.key] = raw
		}
	}
	return entry
}

func (g GroupView) encode() json.RawMessage {
	return encodeSorted(g.entryMap())
}

// Snapshot returns the view as plain maps and slices, the shape evaluators
// and templates consume:
//
//	{"plugins": {"<name>": {"name", "canonicalName", "matchingPrefixes",
//	  "groups": {"<label>": {<field>: value}}}}, "meta": {...}}
func (v MergedView) Snapshot() map[string]any {
	plugins := make(map[string]any, len(v.Plugins))
	for _, plugin := range v.Plugins {
		groups := make(map[string]any, len(plugin.Groups))
		for _, group := range plugin.Groups {
			groups[group.Label] = looseValue(group.encode())
		}
		entry := map[string]any{
			"name":          plugin.Name,
			"canonicalName": plugin.CanonicalName(),
			"groups":        groups,
		}
		prefixes := make([]any, 0, len(plugin.MatchingPrefixes))
		for _, prefix := range plugin.MatchingPrefixes {
			prefixes = append(prefixes, prefix)
		}
		entry["matchingPrefixes"] = prefixes
		for key, raw := range plugin.Extras {
			if _, taken := entry[key]; !taken {
				entry[key] = looseValue(raw)
			}
		}
		plugins[plugin.Name] = entry
	}
	meta := make(map[string]any, len(v.Meta))
	for key, raw := range v.Meta {
		meta[key] = looseValue(raw)
	}
	return map[string]any{"plugins": plugins, "meta": meta}
}

// looseValue decodes raw JSON into plain Go values with float64 numbers.
func looseValue(raw json.RawMessage) any {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func mustMarshal(value any) json.RawMessage {
	raw, err := decode.Marshal(value)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
