package lambda

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/runledger/internal/runs"
)

// HandleSweep runs the reconciliation sweep for a scheduled EventBridge event.
func HandleSweep(ctx context.Context, d *Deps, ev events.CloudWatchEvent) (*runs.SweepReport, error) {
	d.Logger.Info("sweep invoked", "source", ev.Source, "eventId", ev.ID, "time", ev.Time)
	report, err := d.Sweeper.Sweep(ctx)
	if err != nil {
		d.Logger.Error("sweep failed", "error", err)
		return nil, err
	}
	return report, nil
}
