package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-overlay-groups/pkg/loader"
)

func newWatchCommand(a *app) *cobra.Command {
	var (
		interval time.Duration
		notify   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload on change and print fresh/stale transitions",
		Long: `Poll both documents and reload when their size or modification time
changes. With --notify, filesystem events trigger an immediate check. A
document that fails to parse marks the view stale; the last good view stays
in use until the file is fixed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine()
			if err != nil {
				return err
			}
			watcher := loader.NewWatcher(engine,
				loader.WithInterval(interval),
				loader.WithNotify(notify),
				loader.WithWatchLogger(a.logger),
			)
			err = watcher.Run(cmd.Context(), func(t loader.Transition) {
				a.printTransition(t)
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", loader.DefaultPollInterval, "poll interval")
	cmd.Flags().BoolVar(&notify, "notify", true, "also react to filesystem events")
	return cmd
}

func (a *app) printTransition(t loader.Transition) {
	line := fmt.Sprintf("%s -> %s signature=%s", t.From, t.To, t.Signature)
	if t.Err != nil {
		line += fmt.Sprintf(" error=%q", t.Err.Error())
	}
	fmt.Fprintln(a.stdout, line)
}
