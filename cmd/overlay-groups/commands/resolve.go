package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	groups "github.com/goliatone/go-overlay-groups"
)

type resolveOutput struct {
	PayloadID                string                     `json:"payloadId"`
	Plugin                   string                     `json:"plugin"`
	Group                    string                     `json:"group,omitempty"`
	MatchedPrefix            string                     `json:"matchedPrefix,omitempty"`
	MatchMode                string                     `json:"matchMode,omitempty"`
	Anchor                   groups.Anchor              `json:"anchor,omitempty"`
	OffsetX                  float64                    `json:"offsetX"`
	OffsetY                  float64                    `json:"offsetY"`
	PayloadJustification     groups.Justification       `json:"payloadJustification,omitempty"`
	MarkerLabelPosition      groups.MarkerLabelPosition `json:"markerLabelPosition,omitempty"`
	ControllerPreviewBoxMode groups.PreviewBoxMode      `json:"controllerPreviewBoxMode,omitempty"`
	Background               *backgroundOutput          `json:"background,omitempty"`
	Overrides                map[string]json.RawMessage `json:"overrides,omitempty"`
}

type backgroundOutput struct {
	Color       *string `json:"color"`
	BorderColor *string `json:"borderColor"`
	BorderWidth *int    `json:"borderWidth"`
}

func newResolveCommand(a *app) *cobra.Command {
	var hint string
	cmd := &cobra.Command{
		Use:   "resolve <payload-id>",
		Short: "Show the plugin, group and placement a payload id resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			if _, err := engine.LoadAndMerge(cmd.Context()); err != nil {
				return err
			}
			payloadID := args[0]
			resolver := engine.Resolver()
			resolution, ok := resolver.Resolve(payloadID, hint)
			if !ok {
				return fmt.Errorf("no plugin claims payload %q", payloadID)
			}
			return a.render(describeResolution(resolver, payloadID, resolution))
		},
	}
	cmd.Flags().StringVar(&hint, "plugin", "", "plugin name to use instead of prefix matching")
	return cmd
}

func describeResolution(resolver *groups.Resolver, payloadID string, resolution groups.Resolution) resolveOutput {
	out := resolveOutput{
		PayloadID: payloadID,
		Plugin:    resolution.Plugin.Name,
	}
	if fields := resolver.OverrideFields(resolution.Plugin, payloadID); len(fields) > 0 {
		out.Overrides = fields
	}
	if resolution.Group == nil {
		return out
	}
	spec := resolution.Group.Group
	out.Group = spec.Label
	out.MatchedPrefix = resolution.Group.Entry.Value()
	out.MatchMode = resolution.Group.Entry.Mode().String()
	out.Anchor = spec.Anchor
	out.OffsetX = spec.OffsetX
	out.OffsetY = spec.OffsetY
	out.PayloadJustification = spec.PayloadJustification
	out.MarkerLabelPosition = spec.MarkerLabelPosition
	out.ControllerPreviewBoxMode = spec.ControllerPreviewBoxMode
	if bg := spec.Background; bg.Color != nil || bg.BorderColor != nil || bg.BorderWidth != nil {
		out.Background = &backgroundOutput{Color: bg.Color, BorderColor: bg.BorderColor, BorderWidth: bg.BorderWidth}
	}
	return out
}
