package groups

import (
	"bytes"
	"encoding/json"

	"github.com/goliatone/go-overlay-groups/internal/decode"
	"github.com/rs/zerolog"
)

// Option configures Merge, Diff and Shrink.
type Option func(*config)

type config struct {
	logger    zerolog.Logger
	editNonce string
	hasNonce  bool
}

func newConfig(opts []Option) config {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithLogger routes skipped-field warnings to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEditNonce stamps diff output with an "_edit_nonce" key.
func WithEditNonce(nonce string) Option {
	return func(c *config) {
		c.editNonce = nonce
		c.hasNonce = true
	}
}

// Merge combines the shipped and user documents into a normalized view.
//
// A user value wins whenever its key is present and it normalizes; an invalid
// user value falls back to the shipped value, and an invalid shipped value
// leaves the field unset. Skipped fields are logged as *MergeFieldError and
// never abort the merge.
func Merge(shipped, user Document, opts ...Option) MergedView {
	cfg := newConfig(opts)
	m := merger{logger: cfg.logger}
	return m.merge(shipped, user)
}

// Normalize validates a single document as if it were the user layer over an
// empty shipped layer. Unlike Merge it fails on an unparseable idPrefixes list.
func Normalize(doc Document, opts ...Option) (MergedView, error) {
	cfg := newConfig(opts)
	m := merger{logger: cfg.logger, strict: true}
	view := m.merge(NewDocument(), doc)
	if m.failure != nil {
		return MergedView{}, m.failure
	}
	return view, nil
}

type merger struct {
	logger  zerolog.Logger
	strict  bool
	failure error
}

type layerPlugin struct {
	name     string
	disabled bool
	entry    *decode.Object
}

// layerIndex holds one layer's plugin entries keyed by canonical name, in
// first-seen order.
type layerIndex struct {
	order  []string
	byName map[string]layerPlugin
}

func (m *merger) index(layer Layer, doc Document) layerIndex {
	idx := layerIndex{byName: map[string]layerPlugin{}}
	doc.pairs(func(key string, raw json.RawMessage) {
		if IsMetaKey(key) {
			return
		}
		entry, ok := objectOf(raw)
		if !ok {
			m.skip(layer, key, "", "", ErrNotObject)
			return
		}
		canonical := Fold(key)
		if _, seen := idx.byName[canonical]; !seen {
			idx.order = append(idx.order, canonical)
		}
		plugin := layerPlugin{name: key, entry: entry}
		if raw, ok := entry.Get(KeyDisabled); ok && isTrue(raw) {
			plugin.disabled = true
		}
		idx.byName[canonical] = plugin
	})
	return idx
}

func (m *merger) merge(shipped, user Document) MergedView {
	shippedIdx := m.index(LayerShipped, shipped)
	userIdx := m.index(LayerUser, user)

	view := MergedView{Plugins: []PluginView{}, Meta: layerMeta(shipped, user)}
	emit := func(canonical string) {
		s, inShipped := shippedIdx.byName[canonical]
		if inShipped && s.disabled {
			inShipped = false
		}
		u, inUser := userIdx.byName[canonical]
		if inUser && u.disabled {
			return
		}
		if !inShipped && !inUser {
			return
		}
		var shippedEntry, userEntry *decode.Object
		name := u.name
		if inShipped {
			shippedEntry = s.entry
			name = s.name
		}
		if inUser {
			userEntry = u.entry
		}
		view.Plugins = append(view.Plugins, m.mergePlugin(name, shippedEntry, userEntry))
	}
	for _, canonical := range shippedIdx.order {
		emit(canonical)
	}
	for _, canonical := range userIdx.order {
		if _, inShipped := shippedIdx.byName[canonical]; inShipped {
			continue
		}
		emit(canonical)
	}
	return view
}

func (m *merger) mergePlugin(name string, shipped, user *decode.Object) PluginView {
	plugin := PluginView{Name: name}

	m.resolve(name, "", KeyMatchingPrefixes, shipped, user, func(raw any) *ValidationError {
		return assign(NormalizeMatchingPrefixes(raw), &plugin.MatchingPrefixes)
	})

	shippedGroups := m.groupsOf(LayerShipped, name, shipped)
	userGroups := m.groupsOf(LayerUser, name, user)
	labels := make([]string, 0, shippedGroups.Len()+userGroups.Len())
	seen := map[string]struct{}{}
	for _, source := range []*decode.Object{shippedGroups, userGroups} {
		for pair := source.Oldest(); pair != nil; pair = pair.Next() {
			if _, dup := seen[pair.Key]; dup {
				continue
			}
			seen[pair.Key] = struct{}{}
			labels = append(labels, pair.Key)
		}
	}
	for _, label := range labels {
		s := m.groupEntry(LayerShipped, name, label, shippedGroups)
		u := m.groupEntry(LayerUser, name, label, userGroups)
		if u != nil && isDisabled(u) {
			continue
		}
		if s != nil && isDisabled(s) {
			s = nil
		}
		if s == nil && u == nil {
			continue
		}
		plugin.Groups = append(plugin.Groups, m.mergeGroup(name, label, s, u))
	}

	plugin.Extras = mergeExtras(shipped, user, isPluginKey)
	return plugin
}

func (m *merger) mergeGroup(plugin, label string, shipped, user *decode.Object) GroupView {
	group := GroupView{Label: label}
	for _, field := range groupFields {
		m.resolve(plugin, label, field.key, shipped, user, func(raw any) *ValidationError {
			return field.apply(&group.Fields, raw)
		})
	}
	group.Extras = mergeExtras(shipped, user, isGroupKey)
	return group
}

// resolve applies the user value for key when present and valid, then the
// shipped value. It reports whether some layer supplied the field.
func (m *merger) resolve(plugin, group, key string, shipped, user *decode.Object, apply func(any) *ValidationError) (Layer, bool) {
	if raw, ok := lookup(user, key); ok {
		err := applyRaw(raw, apply)
		if err == nil {
			return LayerUser, true
		}
		m.skip(LayerUser, plugin, group, key, err)
		if m.strict && key == KeyIDPrefixes && m.failure == nil {
			m.failure = err
		}
	}
	if raw, ok := lookup(shipped, key); ok {
		err := applyRaw(raw, apply)
		if err == nil {
			return LayerShipped, true
		}
		m.skip(LayerShipped, plugin, group, key, err)
	}
	return LayerUnknown, false
}

func applyRaw(raw json.RawMessage, apply func(any) *ValidationError) *ValidationError {
	value, err := decodeLoose(raw)
	if err != nil {
		return invalidf("value", "undecodable JSON: %v", err)
	}
	return apply(value)
}

func (m *merger) groupsOf(layer Layer, plugin string, entry *decode.Object) *decode.Object {
	raw, ok := lookup(entry, KeyIDPrefixGroups)
	if !ok {
		return decode.NewObject()
	}
	groups, ok := objectOf(raw)
	if !ok {
		m.skip(layer, plugin, "", KeyIDPrefixGroups, ErrNotObject)
		return decode.NewObject()
	}
	return groups
}

func (m *merger) groupEntry(layer Layer, plugin, label string, groups *decode.Object) *decode.Object {
	raw, ok := groups.Get(label)
	if !ok {
		return nil
	}
	entry, ok := objectOf(raw)
	if !ok {
		m.skip(layer, plugin, label, "", ErrNotObject)
		return nil
	}
	return entry
}

func (m *merger) skip(layer Layer, plugin, group, field string, err error) {
	fieldErr := &MergeFieldError{Layer: layer, Plugin: plugin, Group: group, Field: field, Err: err}
	m.logger.Warn().
		Str("layer", layer.String()).
		Str("plugin", plugin).
		Str("group", group).
		Str("field", field).
		Err(fieldErr).
		Msg("skipping invalid value")
}

func lookup(entry *decode.Object, key string) (json.RawMessage, bool) {
	if entry == nil {
		return nil, false
	}
	return entry.Get(key)
}

func isDisabled(entry *decode.Object) bool {
	raw, ok := lookup(entry, KeyDisabled)
	return ok && isTrue(raw)
}

func isPluginKey(key string) bool {
	return key == KeyDisabled || key == KeyMatchingPrefixes || key == KeyIDPrefixGroups
}

func isGroupKey(key string) bool {
	return key == KeyDisabled || IsGroupField(key)
}

// mergeExtras carries uninterpreted keys through, user values replacing
// shipped ones. Values are compacted but keep their key order.
func mergeExtras(shipped, user *decode.Object, interpreted func(string) bool) map[string]json.RawMessage {
	var extras map[string]json.RawMessage
	for _, source := range []*decode.Object{shipped, user} {
		if source == nil {
			continue
		}
		for pair := source.Oldest(); pair != nil; pair = pair.Next() {
			if interpreted(pair.Key) {
				continue
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, pair.Value); err != nil {
				continue
			}
			if extras == nil {
				extras = map[string]json.RawMessage{}
			}
			extras[pair.Key] = compact.Bytes()
		}
	}
	return extras
}

// layerMeta carries "_" keys of both layers, the user value winning.
func layerMeta(shipped, user Document) map[string]json.RawMessage {
	meta := metaOf(shipped)
	for key, raw := range metaOf(user) {
		if meta == nil {
			meta = map[string]json.RawMessage{}
		}
		meta[key] = raw
	}
	return meta
}

func metaOf(doc Document) map[string]json.RawMessage {
	var meta map[string]json.RawMessage
	doc.pairs(func(key string, raw json.RawMessage) {
		if !IsMetaKey(key) {
			return
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return
		}
		if meta == nil {
			meta = map[string]json.RawMessage{}
		}
		meta[key] = compact.Bytes()
	})
	return meta
}
