package commands

import (
	"github.com/spf13/cobra"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/state"
)

func newExplainCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <plugin> <group> <field>",
		Short: "Show which layer supplies a group field",
		Long: `Trace one group field through both layers: whether each layer sets it,
whether the value is valid, and which layer wins. Use matchingPrefixes as
the field, with any group, to trace the plugin's matching prefixes.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requirePaths(); err != nil {
				return err
			}
			shipped, err := a.loadDocument(cmd, state.ShippedRef(a.shipped))
			if err != nil {
				return err
			}
			user, err := a.loadDocument(cmd, state.UserRef(a.user))
			if err != nil {
				return err
			}
			label := args[1]
			if args[2] == groups.KeyMatchingPrefixes {
				label = ""
			}
			trace, err := groups.TraceField(shipped, user, args[0], label, args[2])
			if err != nil {
				return err
			}
			return a.render(trace)
		},
	}
}
