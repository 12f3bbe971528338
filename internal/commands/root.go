package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the runledger command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "runledger",
		Short: "Trigger and track front-end test runs",
		Long: `runledger dispatches the front-end test workflow on GitHub Actions, records
each run per brand and environment, follows it to completion through GitHub
webhooks and a reconciliation sweep, and serves results with links to the
artifacts the suite uploads.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", ".", "Directory containing runledger.yaml")
	root.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Print JSON instead of text")

	root.AddCommand(
		NewServeCmd(opts),
		NewTriggerCmd(opts),
		NewRunsCmd(opts),
		NewResultCmd(opts),
		NewSweepCmd(opts),
		NewStatusCmd(opts),
		NewUsageCmd(opts),
	)
	return root
}
