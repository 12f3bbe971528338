// Package commands implements the CLI subcommands for the runledger binary.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/dwsmith1983/runledger/internal/app"
	"github.com/dwsmith1983/runledger/internal/config"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// Options are the flags shared by every subcommand.
type Options struct {
	ConfigDir string
	JSON      bool
}

const commandTimeout = 30 * time.Second

// openApp loads the project configuration and assembles the service.
func openApp(ctx context.Context, opts *Options) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.Build(ctx, cfg, app.NewLogger(cfg, os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("starting runledger: %w", err)
	}
	return a, nil
}

// withApp runs fn against a freshly assembled app and closes it afterwards.
func withApp(opts *Options, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusString colours a run status for terminal output.
func statusString(s types.RunStatus) string {
	str := string(s)
	switch s {
	case types.RunPassed, types.RunCompleted:
		return color.GreenString(str)
	case types.RunFailed:
		return color.RedString(str)
	case types.RunCancelled:
		return color.YellowString(str)
	case types.RunTriggered, types.RunRunning:
		return color.CyanString(str)
	default:
		return str
	}
}

func formatDuration(seconds *int64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds) * time.Second).String()
}

func printRuns(w io.Writer, items []types.Run) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No test runs found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tBRAND\tENV\tSTATUS\tSTARTED\tDURATION")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RunID, r.Brand, r.Environment, statusString(r.Status),
			r.Timestamp.UTC().Format(time.RFC3339), formatDuration(r.Duration))
	}
	_ = tw.Flush()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
