package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/authoring"
)

type defineOutput struct {
	Plugin           string   `json:"plugin"`
	Group            string   `json:"group"`
	Changed          bool     `json:"changed"`
	Created          bool     `json:"created"`
	Updated          []string `json:"updated,omitempty"`
	MatchingPrefixes []string `json:"matchingPrefixes,omitempty"`
}

func newDefineCommand(a *app) *cobra.Command {
	var (
		startsWith []string
		exact      []string
		matching   []string
		extras     []string
	)
	stringFields := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "define <plugin> <group>",
		Short: "Create or update a group in the shipped document",
		Long: `Create or update a group definition in the shipped document. Every value
is validated strictly and nothing is written when one is rejected. A new
group needs at least one --prefix or --exact entry. Matching prefixes are
added to the plugin's existing ones.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireShipped(); err != nil {
				return err
			}
			def := groups.GroupDefinition{
				MatchingPrefixes: matching,
				Fields:           map[string]any{},
			}
			for _, value := range startsWith {
				def.IDPrefixes = append(def.IDPrefixes, groups.StartsWith(value))
			}
			for _, value := range exact {
				def.IDPrefixes = append(def.IDPrefixes, groups.Exact(value))
			}
			for key, value := range stringFields {
				if cmd.Flags().Changed(flagName(key)) {
					def.Fields[key] = *value
				}
			}
			for _, key := range []string{groups.KeyOffsetX, groups.KeyOffsetY} {
				if cmd.Flags().Changed(flagName(key)) {
					value, _ := cmd.Flags().GetFloat64(flagName(key))
					def.Fields[key] = value
				}
			}
			if cmd.Flags().Changed(flagName(groups.KeyBackgroundBorderWidth)) {
				value, _ := cmd.Flags().GetInt(flagName(groups.KeyBackgroundBorderWidth))
				def.Fields[groups.KeyBackgroundBorderWidth] = value
			}
			for _, assignment := range extras {
				key, value, err := parseAssignment(assignment)
				if err != nil {
					return err
				}
				def.Fields[key] = value
			}

			publisher := authoring.NewPublisher(a.shipped,
				authoring.WithStore(a.store()),
				authoring.WithLogger(a.logger),
				authoring.WithActivity(a.activity),
				authoring.WithClock(a.now),
				authoring.WithActor(a.actor),
			)
			result, err := publisher.Define(cmd.Context(), args[0], args[1], def)
			if err != nil {
				return err
			}
			return a.render(defineOutput{
				Plugin:           result.Plugin,
				Group:            result.Group.Label,
				Changed:          result.Changed,
				Created:          result.Created,
				Updated:          result.Updated,
				MatchingPrefixes: result.MatchingPrefixes,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&startsWith, "prefix", nil, "id prefix matched with startsWith (repeatable)")
	flags.StringSliceVar(&exact, "exact", nil, "id matched exactly (repeatable)")
	flags.StringSliceVar(&matching, "match", nil, "plugin matching prefix (repeatable)")
	flags.StringArrayVar(&extras, "set", nil, "passthrough field as key=json (repeatable)")
	for key, usage := range map[string]string{
		groups.KeyAnchor:                   "anchor (nw|ne|sw|se|center|top|bottom|left|right)",
		groups.KeyPayloadJustification:     "payload justification (left|center|right)",
		groups.KeyMarkerLabelPosition:      "marker label position",
		groups.KeyControllerPreviewBoxMode: "controller preview box mode",
		groups.KeyBackgroundColor:          "background colour (#RRGGBB or #AARRGGBB)",
		groups.KeyBackgroundBorderColor:    "background border colour",
	} {
		value := new(string)
		stringFields[key] = value
		flags.StringVar(value, flagName(key), "", usage)
	}
	flags.Float64(flagName(groups.KeyOffsetX), 0, "horizontal offset")
	flags.Float64(flagName(groups.KeyOffsetY), 0, "vertical offset")
	flags.Int(flagName(groups.KeyBackgroundBorderWidth), 0, "background border width (0-10)")
	return cmd
}

// flagName maps a document key to its flag, e.g. offsetX to offset-x.
func flagName(key string) string {
	switch key {
	case groups.KeyAnchor:
		return "anchor"
	case groups.KeyPayloadJustification:
		return "justification"
	case groups.KeyControllerPreviewBoxMode:
		return "preview-box-mode"
	case groups.KeyBackgroundBorderColor:
		return "border-color"
	case groups.KeyBackgroundBorderWidth:
		return "border-width"
	}
	var builder strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				builder.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// parseAssignment splits key=value. Values that parse as JSON keep their
// type; anything else is a string.
func parseAssignment(assignment string) (string, any, error) {
	key, raw, ok := strings.Cut(assignment, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q: want key=value", assignment)
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return key, raw, nil
	}
	return key, value, nil
}
