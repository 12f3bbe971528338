package commands

import (
	"context"
	"fmt"
	"os/user"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/internal/runs"
)

// NewTriggerCmd creates the trigger command.
func NewTriggerCmd(opts *Options) *cobra.Command {
	var req runs.TriggerRequest

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Dispatch the test workflow for a brand and environment",
		Example: `  runledger trigger --brand mweb --env staging
  runledger trigger --brand webafrica --env prod --run-id webafrica-prod-hotfix-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Actor = cliActor()
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				resp, err := a.Service.Trigger(ctx, req)
				if err != nil {
					return err
				}
				if opts.JSON {
					return writeJSON(cmd.OutOrStdout(), resp)
				}
				w := cmd.OutOrStdout()
				_, _ = color.New(color.FgGreen).Fprintln(w, resp.Message)
				fmt.Fprintf(w, "  Run ID:      %s\n", resp.RunID)
				fmt.Fprintf(w, "  Brand:       %s\n", resp.Brand)
				fmt.Fprintf(w, "  Environment: %s\n", resp.Environment)
				fmt.Fprintf(w, "  Status:      %s\n", statusString(resp.Status))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Brand, "brand", "", "Brand to test (mweb, webafrica)")
	cmd.Flags().StringVar(&req.Environment, "env", "", "Environment to test (prod, staging, dev)")
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "Explicit run id; generated when empty")
	_ = cmd.MarkFlagRequired("brand")
	_ = cmd.MarkFlagRequired("env")
	return cmd
}

func cliActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}
