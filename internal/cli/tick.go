package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"deadlinebot/internal/app"
	"deadlinebot/internal/config"
	"deadlinebot/internal/tasks"

	"github.com/spf13/cobra"
)

// NewTickCommand evaluates one reminder tick and exits.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run a single reminder tick now (or at --at) and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := tasks.ParseDeadline(at)
				if err != nil {
					return err
				}
				now = t
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfgm := config.NewManager(rootOpts.ConfigPath)
			if _, err := cfgm.Load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.New(cfgm)
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopUnknown) }()

			res := a.RunTick(ctx, now)
			if err := output(cmd.OutOrStdout(), rootOpts.Format, res.Results, func(w io.Writer) {
				fmt.Fprintf(w, "tick %s at %s took %s\n", res.RunID, res.Now.Format(time.RFC3339), res.Took.Round(time.Millisecond))
				for _, r := range res.Results {
					fmt.Fprintf(w, "  %-8s owners=%d matched=%d sent=%d failed=%d\n",
						r.Name, r.Report.Owners, r.Report.Matched, r.Report.Sent, r.Report.Failed)
				}
			}); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate as if the local time were this (YYYY-MM-DD HH:MM)")
	return cmd
}
