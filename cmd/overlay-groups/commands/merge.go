package commands

import (
	"github.com/spf13/cobra"
)

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Print the merged view of the shipped and user documents",
		Long: `Print the merged view. Invalid user values fall back to shipped ones,
invalid shipped values are dropped, and plugins or groups disabled in the
user document are omitted. Skipped values are logged at warn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			view, err := engine.LoadAndMerge(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(view.Document())
		},
	}
}
