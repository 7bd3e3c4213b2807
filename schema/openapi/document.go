// Package openapi describes the on-disk group documents as OpenAPI 3.1
// components, for editors that validate hand-written overrides.
package openapi

import (
	"fmt"

	groups "github.com/goliatone/go-overlay-groups"
)

// Component names under #/components/schemas.
const (
	ComponentShipped = "ShippedDocument"
	ComponentUser    = "UserDocument"
	ComponentPlugin  = "PluginEntry"
	ComponentGroup   = "GroupEntry"
	ComponentPrefix  = "IDPrefix"
	ComponentColor   = "Color"
)

// Generate returns an OpenAPI document whose components describe both
// layers. The schemas describe the canonical form the engines write; merge
// itself is more lenient, accepting any enum casing and dropping values it
// cannot read.
func Generate(opts ...Option) map[string]any {
	cfg := applyOptions(opts)
	info := map[string]any{
		"title":   cfg.info.Title,
		"version": cfg.info.Version,
	}
	if cfg.info.Description != "" {
		info["description"] = cfg.info.Description
	}
	return map[string]any{
		"openapi": cfg.openAPIVersion,
		"info":    info,
		"paths":   map[string]any{},
		"components": map[string]any{
			"schemas": map[string]any{
				ComponentShipped: documentSchema(groups.LayerShipped),
				ComponentUser:    documentSchema(groups.LayerUser),
				ComponentPlugin:  pluginSchema(),
				ComponentGroup:   groupSchema(),
				ComponentPrefix:  prefixSchema(),
				ComponentColor:   colorSchema(),
			},
		},
	}
}

// SchemaFor returns the component name describing layer.
func SchemaFor(layer groups.Layer) (string, error) {
	switch layer {
	case groups.LayerShipped:
		return ComponentShipped, nil
	case groups.LayerUser:
		return ComponentUser, nil
	default:
		return "", fmt.Errorf("openapi: no schema for layer %s", layer)
	}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func documentSchema(layer groups.Layer) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": ref(ComponentPlugin),
	}
	switch layer {
	case groups.LayerUser:
		schema["description"] = "User overrides. Keys starting with _ are metadata; " + groups.KeyEditNonce + " records the last edit."
		schema["patternProperties"] = map[string]any{"^_": map[string]any{}}
		schema["properties"] = map[string]any{
			groups.KeyEditNonce: map[string]any{"type": "string"},
		}
	default:
		schema["description"] = "Shipped plugin group definitions. Keys starting with _ are ignored."
		schema["patternProperties"] = map[string]any{"^_": map[string]any{}}
	}
	return schema
}

func pluginSchema() map[string]any {
	return map[string]any{
		"type":        "object",
		"description": "A plugin entry, matched case-insensitively by name. Unknown keys pass through.",
		"properties": map[string]any{
			groups.KeyDisabled: map[string]any{
				"type":        "boolean",
				"description": "Suppresses the plugin. Only honoured in the user document.",
			},
			groups.KeyMatchingPrefixes: map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			groups.KeyIDPrefixGroups: map[string]any{
				"type":                 "object",
				"description":          "Groups keyed by case-sensitive label.",
				"additionalProperties": ref(ComponentGroup),
			},
			groups.KeyOverrides: map[string]any{
				"type":                 "object",
				"description":          "Legacy overrides keyed by glob pattern over payload ids.",
				"additionalProperties": map[string]any{"type": "object"},
			},
		},
		"additionalProperties": true,
	}
}

func groupSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			groups.KeyDisabled: map[string]any{"type": "boolean"},
			groups.KeyIDPrefixes: map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    ref(ComponentPrefix),
			},
			groups.KeyAnchor: enumSchema(groups.DefaultAnchor,
				groups.AnchorNW, groups.AnchorNE, groups.AnchorSW, groups.AnchorSE, groups.AnchorCenter,
				groups.AnchorTop, groups.AnchorBottom, groups.AnchorLeft, groups.AnchorRight),
			groups.KeyOffsetX: map[string]any{"type": "number"},
			groups.KeyOffsetY: map[string]any{"type": "number"},
			groups.KeyPayloadJustification: enumSchema(groups.DefaultJustification,
				groups.JustifyLeft, groups.JustifyCenter, groups.JustifyRight),
			groups.KeyMarkerLabelPosition: enumSchema(groups.DefaultMarkerLabelPosition,
				groups.MarkerBelow, groups.MarkerAbove, groups.MarkerCentered),
			groups.KeyControllerPreviewBoxMode: enumSchema(groups.DefaultPreviewBoxMode,
				groups.PreviewLast, groups.PreviewMax),
			groups.KeyBackgroundColor:       ref(ComponentColor),
			groups.KeyBackgroundBorderColor: ref(ComponentColor),
			groups.KeyBackgroundBorderWidth: map[string]any{
				"type":    []any{"integer", "null"},
				"minimum": 0,
				"maximum": groups.MaxBorderWidth,
			},
		},
		"additionalProperties": true,
	}
}

func prefixSchema() map[string]any {
	return map[string]any{
		"oneOf": []any{
			map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Matches ids starting with the value, case-insensitively.",
			},
			map[string]any{
				"type":     "object",
				"required": []any{"value"},
				"properties": map[string]any{
					"value":     map[string]any{"type": "string", "minLength": 1},
					"matchMode": map[string]any{"type": "string", "enum": []any{groups.MatchStartsWith.String(), groups.MatchExact.String()}},
				},
			},
		},
	}
}

func colorSchema() map[string]any {
	return map[string]any{
		"type":        []any{"string", "null"},
		"description": "#RRGGBB, #AARRGGBB or a color name. Null or empty clears the color.",
		"pattern":     `^(|#?[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?|[A-Za-z][A-Za-z0-9_]*)$`,
	}
}

func enumSchema[T ~string](def T, values ...T) map[string]any {
	enum := make([]any, 0, len(values))
	for _, value := range values {
		enum = append(enum, string(value))
	}
	return map[string]any{
		"type":    "string",
		"enum":    enum,
		"default": string(def),
	}
}
