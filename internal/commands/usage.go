package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
)

// NewUsageCmd creates the usage command.
func NewUsageCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage [prefix]",
		Short: "Show object count and size in the artifact bucket",
		Example: `  runledger usage
  runledger usage reports/mweb/prod/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prefix string
			if len(args) > 0 {
				prefix = args[0]
			}
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				u, err := a.Locator.Usage(ctx, prefix)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if opts.JSON {
					return writeJSON(w, u)
				}
				label := u.Prefix
				if label == "" {
					label = "(whole bucket)"
				}
				fmt.Fprintf(w, "%s: %d object(s), %s\n", label, u.Objects, formatBytes(u.Bytes))
				return nil
			})
		},
	}
}
