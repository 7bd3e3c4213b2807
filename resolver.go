package groups

import (
	"encoding/json"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goliatone/go-overlay-groups/internal/decode"
)

// Background is the resolved background triplet of a group. Nil members are
// unset or explicitly cleared.
type Background struct {
	Color       *string
	BorderColor *string
	BorderWidth *int
}

// GroupSpec is a merged group with consumer defaults applied.
type GroupSpec struct {
	Label                    string
	Prefixes                 []PrefixEntry
	Anchor                   Anchor
	OffsetX                  float64
	OffsetY                  float64
	PayloadJustification     Justification
	MarkerLabelPosition      MarkerLabelPosition
	ControllerPreviewBoxMode PreviewBoxMode
	Background               Background
	Extras                   map[string]json.RawMessage
}

// FirstPrefix returns the first declared prefix, used as the display fallback
// for a group.
func (g GroupSpec) FirstPrefix() (PrefixEntry, bool) {
	if len(g.Prefixes) == 0 {
		return PrefixEntry{}, false
	}
	return g.Prefixes[0], true
}

func defaultGroupSpec(label string) GroupSpec {
	return GroupSpec{
		Label:                    label,
		Anchor:                   DefaultAnchor,
		PayloadJustification:     DefaultJustification,
		MarkerLabelPosition:      DefaultMarkerLabelPosition,
		ControllerPreviewBoxMode: DefaultPreviewBoxMode,
	}
}

func newGroupSpec(view GroupView) GroupSpec {
	spec := defaultGroupSpec(view.Label)
	fields := view.Fields
	spec.Prefixes = append([]PrefixEntry(nil), fields.IDPrefixes...)
	if fields.Anchor != nil {
		spec.Anchor = *fields.Anchor
	}
	if fields.OffsetX != nil {
		spec.OffsetX = *fields.OffsetX
	}
	if fields.OffsetY != nil {
		spec.OffsetY = *fields.OffsetY
	}
	if fields.PayloadJustification != nil {
		spec.PayloadJustification = *fields.PayloadJustification
	}
	if fields.MarkerLabelPosition != nil {
		spec.MarkerLabelPosition = *fields.MarkerLabelPosition
	}
	if fields.ControllerPreviewBoxMode != nil {
		spec.ControllerPreviewBoxMode = *fields.ControllerPreviewBoxMode
	}
	if fields.BackgroundColor != nil {
		spec.Background.Color = fields.BackgroundColor.Ptr()
	}
	if fields.BackgroundBorderColor != nil {
		spec.Background.BorderColor = fields.BackgroundBorderColor.Ptr()
	}
	if fields.BackgroundBorderWidth != nil {
		spec.Background.BorderWidth = fields.BackgroundBorderWidth.Ptr()
	}
	spec.Extras = view.Extras
	return spec
}

// Override is a legacy id-pattern override: a glob matched against payload
// ids and the raw fields it sets.
type Override struct {
	Pattern string
	Fields  map[string]json.RawMessage
	folded  string
}

// Matches reports whether the override pattern matches payloadID,
// case-insensitively.
func (o Override) Matches(payloadID string) bool {
	ok, err := doublestar.Match(o.folded, Fold(payloadID))
	return err == nil && ok
}

// PluginConfig is a merged plugin prepared for runtime lookups.
type PluginConfig struct {
	Name            string
	CanonicalName   string
	MatchIDPrefixes []string
	GroupSpecs      []GroupSpec
	Overrides       []Override
}

// Group returns the group spec with the given label.
func (p PluginConfig) Group(label string) (GroupSpec, bool) {
	for _, spec := range p.GroupSpecs {
		if spec.Label == label {
			return spec, true
		}
	}
	return GroupSpec{}, false
}

func newPluginConfig(view PluginView) PluginConfig {
	plugin := PluginConfig{
		Name:            view.Name,
		CanonicalName:   view.CanonicalName(),
		MatchIDPrefixes: append([]string(nil), view.MatchingPrefixes...),
	}
	for _, group := range view.Groups {
		plugin.GroupSpecs = append(plugin.GroupSpecs, newGroupSpec(group))
	}
	plugin.Overrides = parseOverrides(view.Extras[KeyOverrides])
	return plugin
}

// parseOverrides reads the legacy "overrides" object. Entries that are not
// objects or whose pattern is not a valid glob are ignored.
func parseOverrides(raw json.RawMessage) []Override {
	if len(raw) == 0 {
		return nil
	}
	object, ok := objectOf(raw)
	if !ok {
		return nil
	}
	var overrides []Override
	for pair := object.Oldest(); pair != nil; pair = pair.Next() {
		fieldsObject, ok := objectOf(pair.Value)
		if !ok {
			continue
		}
		folded := Fold(pair.Key)
		if !doublestar.ValidatePattern(folded) {
			continue
		}
		fields := make(map[string]json.RawMessage, fieldsObject.Len())
		for field := fieldsObject.Oldest(); field != nil; field = field.Next() {
			fields[field.Key] = field.Value
		}
		overrides = append(overrides, Override{Pattern: pair.Key, Fields: fields, folded: folded})
	}
	return overrides
}

// GroupMatch is the outcome of GroupFor with the entry that decided it.
type GroupMatch struct {
	Group GroupSpec
	Entry PrefixEntry
	Tier  int
}

// Resolution is the outcome of Resolve. Group is nil when the plugin owns the
// payload but no group matches it.
type Resolution struct {
	Plugin PluginConfig
	Group  *GroupMatch
}

// Resolver answers runtime lookups against one merged view. It is immutable
// once built and safe for concurrent use. A nil *Resolver knows no plugins and
// its accessors return defaults.
type Resolver struct {
	plugins []PluginConfig
	byName  map[string]int
}

// NewResolver prepares view for lookups.
func NewResolver(view MergedView) *Resolver {
	r := &Resolver{byName: make(map[string]int, len(view.Plugins))}
	for _, plugin := range view.Plugins {
		entry := newPluginConfig(plugin)
		if i, dup := r.byName[entry.CanonicalName]; dup {
			r.plugins[i] = entry
			continue
		}
		r.byName[entry.CanonicalName] = len(r.plugins)
		r.plugins = append(r.plugins, entry)
	}
	return r
}

// Plugins returns the plugins in declaration order.
func (r *Resolver) Plugins() []PluginConfig {
	if r == nil {
		return nil
	}
	return append([]PluginConfig(nil), r.plugins...)
}

// Plugin looks a plugin up by name, case-insensitively.
func (r *Resolver) Plugin(name string) (PluginConfig, bool) {
	if r == nil {
		return PluginConfig{}, false
	}
	i, ok := r.byName[Fold(name)]
	if !ok {
		return PluginConfig{}, false
	}
	return r.plugins[i], true
}

// PluginFor returns the plugin that owns payloadID. A hint naming a known
// plugin wins; otherwise the first plugin with a matchingPrefixes entry that
// prefixes the id is chosen.
func (r *Resolver) PluginFor(payloadID, hint string) (PluginConfig, bool) {
	if r == nil {
		return PluginConfig{}, false
	}
	if hint != "" {
		if plugin, ok := r.Plugin(hint); ok {
			return plugin, true
		}
	}
	folded := Fold(payloadID)
	for _, plugin := range r.plugins {
		for _, prefix := range plugin.MatchIDPrefixes {
			if prefix != "" && strings.HasPrefix(folded, prefix) {
				return plugin, true
			}
		}
	}
	return PluginConfig{}, false
}

// GroupFor returns the group of plugin whose prefixes best match payloadID.
func (r *Resolver) GroupFor(plugin PluginConfig, payloadID string) (GroupSpec, bool) {
	match, ok := r.MatchGroup(plugin, payloadID)
	if !ok {
		return GroupSpec{}, false
	}
	return match.Group, true
}

// MatchGroup is GroupFor reporting the deciding entry. Groups are ranked by
// their best entry; equal ranks keep the earliest group.
func (r *Resolver) MatchGroup(plugin PluginConfig, payloadID string) (GroupMatch, bool) {
	folded := Fold(payloadID)
	var best GroupMatch
	var bestRank PrefixMatch
	found := false
	for _, spec := range plugin.GroupSpecs {
		candidate, ok := bestMatchFolded(folded, spec.Prefixes)
		if !ok {
			continue
		}
		if !found || candidate.Better(bestRank) {
			best = GroupMatch{Group: spec, Entry: candidate.Entry, Tier: candidate.Tier}
			bestRank = candidate
			found = true
		}
	}
	return best, found
}

// Resolve finds the owning plugin and, when one matches, its group.
func (r *Resolver) Resolve(payloadID, hint string) (Resolution, bool) {
	plugin, ok := r.PluginFor(payloadID, hint)
	if !ok {
		return Resolution{}, false
	}
	resolution := Resolution{Plugin: plugin}
	if match, ok := r.MatchGroup(plugin, payloadID); ok {
		resolution.Group = &match
	}
	return resolution, true
}

// Group returns the group spec for (plugin, label).
func (r *Resolver) Group(plugin, label string) (GroupSpec, bool) {
	entry, ok := r.Plugin(plugin)
	if !ok {
		return GroupSpec{}, false
	}
	return entry.Group(label)
}

func (r *Resolver) spec(plugin, label string) GroupSpec {
	if spec, ok := r.Group(plugin, label); ok {
		return spec
	}
	return defaultGroupSpec(label)
}

// Offset returns the group offset, or (0, 0).
func (r *Resolver) Offset(plugin, label string) (float64, float64) {
	spec := r.spec(plugin, label)
	return spec.OffsetX, spec.OffsetY
}

// Anchor returns the group anchor, or DefaultAnchor.
func (r *Resolver) Anchor(plugin, label string) Anchor {
	return r.spec(plugin, label).Anchor
}

// Justification returns the payload justification, or DefaultJustification.
func (r *Resolver) Justification(plugin, label string) Justification {
	return r.spec(plugin, label).PayloadJustification
}

// MarkerLabelPosition returns the marker label position, or
// DefaultMarkerLabelPosition.
func (r *Resolver) MarkerLabelPosition(plugin, label string) MarkerLabelPosition {
	return r.spec(plugin, label).MarkerLabelPosition
}

// PreviewBoxMode returns the controller preview box mode, or
// DefaultPreviewBoxMode.
func (r *Resolver) PreviewBoxMode(plugin, label string) PreviewBoxMode {
	return r.spec(plugin, label).ControllerPreviewBoxMode
}

// Background returns the background triplet. Unknown groups have none.
func (r *Resolver) Background(plugin, label string) Background {
	return r.spec(plugin, label).Background
}

// OverridesFor returns the legacy overrides of plugin matching payloadID, in
// declaration order.
func (r *Resolver) OverridesFor(plugin PluginConfig, payloadID string) []Override {
	var matched []Override
	for _, override := range plugin.Overrides {
		if override.Matches(payloadID) {
			matched = append(matched, override)
		}
	}
	return matched
}

// OverrideFields folds the matching overrides into one field map, later
// overrides replacing earlier ones. Values are canonical JSON.
func (r *Resolver) OverrideFields(plugin PluginConfig, payloadID string) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	for _, override := range r.OverridesFor(plugin, payloadID) {
		for key, raw := range override.Fields {
			if canonical, err := decode.Canonical(raw); err == nil {
				fields[key] = canonical
			}
		}
	}
	return fields
}
