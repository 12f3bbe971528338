package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/internal/runs"
)

// NewRunsCmd creates the runs command.
func NewRunsCmd(opts *Options) *cobra.Command {
	var (
		params runs.ListParams
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent test runs",
		Example: `  runledger runs --brand webafrica
  runledger runs --status failed --start 2025-06-01 --end 2025-06-07`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit > 0 {
				params.Limit = strconv.Itoa(limit)
			}
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				resp, err := a.Service.List(ctx, params)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if opts.JSON {
					return writeJSON(w, resp)
				}
				printRuns(w, resp.Items)
				if resp.Pagination.HasMore {
					fmt.Fprintf(w, "\nMore results: --cursor %s\n", resp.Pagination.LastEvaluatedKey)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&params.Brand, "brand", "", "Brand to list (default mweb)")
	cmd.Flags().StringVar(&params.Status, "status", "", "Only runs in this status")
	cmd.Flags().StringVar(&params.StartDate, "start", "", "Earliest run start (date or RFC 3339)")
	cmd.Flags().StringVar(&params.EndDate, "end", "", "Latest run start (date or RFC 3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (1-100)")
	cmd.Flags().StringVar(&params.Cursor, "cursor", "", "Continuation cursor from a previous page")
	return cmd
}
