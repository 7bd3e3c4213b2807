package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-overlay-groups/pkg/query"
)

func newQueryCommand(a *app) *cobra.Command {
	var (
		engineName string
		describe   bool
	)
	cmd := &cobra.Command{
		Use:   "query <expr>",
		Short: "Evaluate an expression over the merged view",
		Long: `Evaluate an expression over the merged view. The view is bound as
"plugins" (keyed by plugin name) and "meta" (user metadata keys), for example:

  overlay-groups query 'plugins["EDR"].groups["docking"].offsetX > 0'

--describe lists every path in the view with its type instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			view, err := engine.LoadAndMerge(cmd.Context())
			if err != nil {
				return err
			}
			if describe {
				return a.render(query.Describe(view))
			}
			if len(args) == 0 {
				return errors.New("an expression is required unless --describe is set")
			}
			kind, err := query.ParseEngine(engineName)
			if err != nil {
				return err
			}
			result, err := query.Evaluate(view, args[0],
				query.WithEngine(kind),
				query.WithSource(a.user),
				query.WithClock(a.now),
				query.WithEvaluatorLogger(query.ZerologEvaluatorLogger(a.logger)),
			)
			if err != nil {
				return err
			}
			return a.render(result)
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", string(query.EngineExpr), "expression engine (expr|cel|js)")
	cmd.Flags().BoolVar(&describe, "describe", false, "list view paths and types")
	return cmd
}
