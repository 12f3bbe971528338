package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// NewResultCmd creates the result command.
func NewResultCmd(opts *Options) *cobra.Command {
	var brand string

	cmd := &cobra.Command{
		Use:   "result <run-id>",
		Short: "Show a test run and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.Result(ctx, args[0], brand)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&brand, "brand", "", "Brand of the run; every brand is searched when empty")
	return cmd
}

func printResult(w io.Writer, res *types.RunResult) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Run: %s\n", res.RunID)
	fmt.Fprintf(w, "  Brand:       %s\n", res.Brand)
	fmt.Fprintf(w, "  Environment: %s\n", res.Environment)
	fmt.Fprintf(w, "  Status:      %s\n", statusString(res.Status))
	fmt.Fprintf(w, "  Started:     %s\n", res.Timestamp.UTC().Format(time.RFC3339))
	if res.Duration != nil {
		fmt.Fprintf(w, "  Duration:    %s\n", formatDuration(res.Duration))
	}
	if res.GitHubRunID != 0 {
		fmt.Fprintf(w, "  GitHub run:  %d\n", res.GitHubRunID)
	}
	if res.Reason != "" {
		fmt.Fprintf(w, "  Reason:      %s\n", res.Reason)
	}
	if res.ReportURL != "" {
		fmt.Fprintf(w, "  Report:      %s\n", res.ReportURL)
	}

	art := res.Artifacts
	if art == nil {
		return
	}
	fmt.Fprintln(w)
	if art.Error != "" {
		_, _ = color.New(color.FgRed).Fprintf(w, "  Artifacts: %s\n", art.Error)
		return
	}
	_, _ = bold.Fprintln(w, "  Artifacts:")
	for _, group := range []struct {
		name  string
		items []types.ArtifactItem
	}{
		{"reports", art.Reports},
		{"screenshots", art.Screenshots},
		{"videos", art.Videos},
		{"traces", art.Traces},
	} {
		fmt.Fprintf(w, "    %-12s %d\n", group.name, len(group.items))
		for _, item := range group.items {
			fmt.Fprintf(w, "      %s (%s)\n", item.Key, formatBytes(item.Size))
		}
	}
}
