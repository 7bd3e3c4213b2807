package groups

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefineGroupCreatesPluginAndGroup(t *testing.T) {
	result, err := DefineGroup(NewDocument(), "EDR", "docking", GroupDefinition{
		MatchingPrefixes: []string{"EDR-"},
		IDPrefixes:       []PrefixSpec{StartsWith("edr-docking-"), Exact("edr-dock")},
		Fields: map[string]any{
			KeyAnchor:  "centroid",
			KeyOffsetX: 4,
			"notes":    "shipped by EDR",
		},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if !result.Changed || !result.Created {
		t.Fatalf("expected a created group, got %+v", result)
	}
	want := MustParseDocument(`{"EDR":{"matchingPrefixes":["edr-"],"idPrefixGroups":{"docking":{
		"idPrefixGroupAnchor":"center",
		"idPrefixes":["edr-docking-",{"value":"edr-dock","matchMode":"exact"}],
		"notes":"shipped by EDR",
		"offsetX":4}}}}`)
	if !want.Equal(result.Document) {
		t.Fatalf("unexpected document %s", result.Document)
	}
}

func TestDefineGroupIsStrict(t *testing.T) {
	doc := MustParseDocument(`{"EDR":{"idPrefixGroups":{"docking":{"idPrefixes":["edr-docking-"]}}}}`)
	cases := []struct {
		name string
		def  GroupDefinition
	}{
		{name: "bad anchor", def: GroupDefinition{Fields: map[string]any{KeyAnchor: "middle"}}},
		{name: "bad width", def: GroupDefinition{Fields: map[string]any{KeyBackgroundBorderWidth: 11}}},
		{name: "bad color", def: GroupDefinition{Fields: map[string]any{KeyBackgroundColor: "#12"}}},
		{name: "empty prefixes", def: GroupDefinition{IDPrefixes: []PrefixSpec{}}},
		{name: "blank prefix", def: GroupDefinition{IDPrefixes: []PrefixSpec{StartsWith("  ")}}},
		{name: "disabled", def: GroupDefinition{Fields: map[string]any{KeyDisabled: true}}},
		{name: "meta key", def: GroupDefinition{Fields: map[string]any{"_x": 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefineGroup(doc, "EDR", "docking", tc.def)
			if !IsValidationError(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestDefineGroupNewGroupNeedsPrefixes(t *testing.T) {
	_, err := DefineGroup(NewDocument(), "EDR", "alerts", GroupDefinition{Fields: map[string]any{KeyOffsetY: 1}})
	if !errors.Is(err, ErrEmptyPrefixes) {
		t.Fatalf("expected ErrEmptyPrefixes, got %v", err)
	}
	if _, err := DefineGroup(NewDocument(), " ", "alerts", GroupDefinition{}); !IsValidationError(err) {
		t.Fatalf("expected validation error for blank plugin, got %v", err)
	}
}

func TestDefineGroupUpdatesInPlace(t *testing.T) {
	doc := MustParseDocument(`{
	  "edr": {
	    "matchingPrefixes": ["edr-"],
	    "idPrefixGroups": {
	      "docking": {"idPrefixes": ["edr-docking-"], "offsetX": 1, "hint": "keep"},
	      "alerts": {"idPrefixes": ["edr-alert-"]}
	    }
	  },
	  "Other": {}
	}`)

	result, err := DefineGroup(doc, "EDR", "docking", GroupDefinition{
		MatchingPrefixes: []string{"EDR-", "dock-"},
		Fields:           map[string]any{KeyOffsetX: 2},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if result.Created || !result.Changed {
		t.Fatalf("expected an update, got %+v", result)
	}
	if result.Plugin != "edr" {
		t.Fatalf("expected stored key to be kept, got %q", result.Plugin)
	}
	if want := []string{"matchingPrefixes", "offsetX"}; !reflect.DeepEqual(result.Updated, want) {
		t.Fatalf("updated = %v, want %v", result.Updated, want)
	}
	if got := result.Document.Keys(); !reflect.DeepEqual(got, []string{"edr", "Other"}) {
		t.Fatalf("plugin order changed: %v", got)
	}

	view := Merge(result.Document, NewDocument())
	docking := mustGroup(t, view, "edr", "docking")
	if *docking.Fields.OffsetX != 2 || len(docking.Fields.IDPrefixes) != 1 {
		t.Fatalf("unexpected docking group %+v", docking.Fields)
	}
	if string(docking.Extras["hint"]) != `"keep"` {
		t.Fatalf("passthrough key lost: %v", docking.Extras)
	}
	plugin, _ := view.Plugin("edr")
	if !reflect.DeepEqual(plugin.MatchingPrefixes, []string{"edr-", "dock-"}) {
		t.Fatalf("expected union of matching prefixes, got %v", plugin.MatchingPrefixes)
	}
	if labels := []string{plugin.Groups[0].Label, plugin.Groups[1].Label}; !reflect.DeepEqual(labels, []string{"docking", "alerts"}) {
		t.Fatalf("group order changed: %v", labels)
	}
}

func TestDefineGroupUnchanged(t *testing.T) {
	doc := MustParseDocument(`{"EDR":{"idPrefixGroups":{"docking":{"idPrefixes":["edr-docking-"],"idPrefixGroupAnchor":"se"}}}}`)
	result, err := DefineGroup(doc, "edr", "docking", GroupDefinition{
		IDPrefixes: []PrefixSpec{StartsWith("edr-docking-")},
		Fields:     map[string]any{KeyAnchor: "SE"},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if result.Changed {
		t.Fatalf("expected no change, updated %v", result.Updated)
	}
	if !result.Document.Equal(doc) {
		t.Fatalf("unchanged definition must return the input document")
	}
}

func TestDefineGroupReenablesDisabledPlugin(t *testing.T) {
	doc := MustParseDocument(`{"EDR":{"disabled":true}}`)
	result, err := DefineGroup(doc, "EDR", "docking", GroupDefinition{IDPrefixes: []PrefixSpec{StartsWith("edr-")}})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	if _, ok := Merge(result.Document, NewDocument()).Plugin("EDR"); !ok {
		t.Fatalf("expected plugin to be enabled, got %s", result.Document)
	}
}
