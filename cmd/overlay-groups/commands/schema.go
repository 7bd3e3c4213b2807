package commands

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-overlay-groups/schema/openapi"
)

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print an OpenAPI description of the shipped and user documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.render(openapi.Generate(openapi.WithInfo("Overlay Groups", Version, "")))
		},
	}
}
