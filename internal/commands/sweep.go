package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
)

// NewSweepCmd creates the sweep command.
func NewSweepCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stale runs with GitHub once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				report, err := a.Service.Sweep(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if opts.JSON {
					return writeJSON(w, report)
				}
				fmt.Fprintf(w, "Examined %d stale run(s): %d reconciled, %d abandoned, %d unchanged, %d failed\n",
					report.Examined, report.Reconciled, report.Abandoned, report.Unchanged, report.Failed)
				return nil
			})
		},
	}
}
