package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backends and show runs still in flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				return runStatus(ctx, cmd.OutOrStdout(), a)
			})
		},
	}
}

var activeStatuses = []types.RunStatus{types.RunPending, types.RunTriggered, types.RunRunning}

func runStatus(ctx context.Context, w io.Writer, a *app.App) error {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, "Backends:")
	printCheck(w, fmt.Sprintf("store (%s)", a.Config.Provider), a.Store.Ping(ctx))
	printCheck(w, fmt.Sprintf("artifacts (%s)", a.Config.Artifacts.Backend), a.Locator.Ping(ctx))
	fmt.Fprintln(w)

	_, _ = bold.Fprintln(w, "In flight:")
	var active []types.Run
	for _, brand := range types.Brands {
		for _, status := range activeStatuses {
			resp, err := a.Service.List(ctx, runs.ListParams{
				Brand:  string(brand),
				Status: string(status),
				Limit:  fmt.Sprint(runs.MaxListLimit),
			})
			if err != nil {
				return fmt.Errorf("listing %s runs for %s: %w", status, brand, err)
			}
			active = append(active, resp.Items...)
		}
	}
	printRuns(w, active)
	return nil
}

func printCheck(w io.Writer, name string, err error) {
	if err != nil {
		_, _ = color.New(color.FgRed).Fprintf(w, "  ✗ %s: %v\n", name, err)
		return
	}
	_, _ = color.New(color.FgGreen).Fprintf(w, "  ✓ %s\n", name)
}
