package groups

import (
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-overlay-groups/internal/decode"
)

// Trace captures where the effective value of one group field came from.
type Trace struct {
	Path       string          `json:"path"`
	Effective  Layer           `json:"-"`
	Source     string          `json:"source"`
	Value      json.RawMessage `json:"value,omitempty"`
	Suppressed bool            `json:"suppressed,omitempty"`
	Layers     []Provenance    `json:"layers"`
}

// Provenance details how one layer contributed to a traced field.
type Provenance struct {
	Layer    string          `json:"layer"`
	Found    bool            `json:"found"`
	Valid    bool            `json:"valid"`
	Disabled bool            `json:"disabled,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// TraceField explains how Merge resolves field for (plugin, label). Pass
// KeyMatchingPrefixes as field, with an empty label, to trace the plugin's
// matching prefixes.
func TraceField(shipped, user Document, plugin, label, field string) (Trace, error) {
	var normalize func(any) (json.RawMessage, *ValidationError)
	if field == KeyMatchingPrefixes {
		normalize = func(raw any) (json.RawMessage, *ValidationError) {
			outcome := NormalizeMatchingPrefixes(raw)
			if outcome.err != nil {
				return nil, outcome.err
			}
			return mustMarshal(outcome.value), nil
		}
	} else {
		def, ok := groupFieldIndex[field]
		if !ok {
			return Trace{}, invalidf("field", "unknown group field %q", field)
		}
		normalize = func(raw any) (json.RawMessage, *ValidationError) {
			var fields GroupFields
			if err := def.apply(&fields, raw); err != nil {
				return nil, err
			}
			value, _ := encodedField(fields, def)
			return value, nil
		}
	}

	path := fmt.Sprintf("%s.%s.%s", plugin, label, field)
	if field == KeyMatchingPrefixes {
		path = fmt.Sprintf("%s.%s", plugin, field)
	}
	trace := Trace{Path: path}
	for _, layer := range []struct {
		layer Layer
		doc   Document
	}{{LayerUser, user}, {LayerShipped, shipped}} {
		trace.Layers = append(trace.Layers, traceLayer(layer.layer, layer.doc, plugin, label, field, normalize))
	}

	userProv, shippedProv := trace.Layers[0], trace.Layers[1]
	switch {
	case userProv.Disabled:
		trace.Suppressed = true
	case userProv.Valid:
		trace.Effective, trace.Value = LayerUser, userProv.Value
	case shippedProv.Valid && !shippedProv.Disabled:
		trace.Effective, trace.Value = LayerShipped, shippedProv.Value
	}
	trace.Source = trace.Effective.String()
	if trace.Effective == LayerUnknown {
		trace.Source = "none"
	}
	return trace, nil
}

func traceLayer(layer Layer, doc Document, plugin, label, field string, normalize func(any) (json.RawMessage, *ValidationError)) Provenance {
	prov := Provenance{Layer: layer.String()}
	entry := pluginEntry(doc, plugin)
	if entry == nil {
		return prov
	}
	if isDisabled(entry) {
		prov.Disabled = true
	}
	owner := entry
	if field != KeyMatchingPrefixes {
		raw, ok := lookup(entry, KeyIDPrefixGroups)
		if !ok {
			return prov
		}
		groups, ok := objectOf(raw)
		if !ok {
			return prov
		}
		groupRaw, ok := groups.Get(label)
		if !ok {
			return prov
		}
		owner, ok = objectOf(groupRaw)
		if !ok {
			return prov
		}
		if isDisabled(owner) {
			prov.Disabled = true
		}
	}
	raw, ok := lookup(owner, field)
	if !ok {
		return prov
	}
	prov.Found = true
	prov.Raw = append(json.RawMessage(nil), raw...)
	value, err := decodeLoose(raw)
	if err != nil {
		prov.Error = err.Error()
		return prov
	}
	normalized, verr := normalize(value)
	if verr != nil {
		prov.Error = verr.Error()
		return prov
	}
	prov.Valid = true
	prov.Value = normalized
	return prov
}

// pluginEntry finds the entry for plugin by canonical name. The last object
// entry wins, as in Merge.
func pluginEntry(doc Document, plugin string) *decode.Object {
	canonical := Fold(plugin)
	var found *decode.Object
	doc.pairs(func(key string, raw json.RawMessage) {
		if IsMetaKey(key) || Fold(key) != canonical {
			return
		}
		if entry, ok := objectOf(raw); ok {
			found = entry
		}
	})
	return found
}

// ToJSON serialises the trace for logging or CLI output.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON decodes a payload produced by ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	out := Trace(trace)
	out.Effective = ParseLayer(out.Source)
	return out, nil
}
