// Package metrics defines the service's OpenTelemetry counters.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Counters holds every counter the service records.
type Counters struct {
	RunsTriggered       metric.Int64Counter
	DispatchFailures    metric.Int64Counter
	WebhooksProcessed   metric.Int64Counter
	SignatureRejections metric.Int64Counter
	ArtifactFailures    metric.Int64Counter
	RunsReconciled      metric.Int64Counter
	RunsAbandoned       metric.Int64Counter
	EventsPublished     metric.Int64Counter
}

// New registers the counters on meter.
func New(meter metric.Meter) (*Counters, error) {
	c := &Counters{}
	for _, def := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&c.RunsTriggered, "runs_triggered_total", "Test runs dispatched to CI."},
		{&c.DispatchFailures, "dispatch_failures_total", "Workflow dispatch calls that failed."},
		{&c.WebhooksProcessed, "webhooks_processed_total", "Completed workflow_run webhooks applied."},
		{&c.SignatureRejections, "webhook_signature_rejections_total", "Webhooks rejected for a bad signature."},
		{&c.ArtifactFailures, "artifact_lookup_failures_total", "Artifact lookups that failed."},
		{&c.RunsReconciled, "runs_reconciled_total", "Runs brought up to date by the sweep."},
		{&c.RunsAbandoned, "runs_abandoned_total", "Runs cancelled by the sweep after no CI run was found."},
		{&c.EventsPublished, "events_published_total", "Run lifecycle events sent to the event bus."},
	} {
		counter, err := meter.Int64Counter(def.name, metric.WithDescription(def.desc))
		if err != nil {
			return nil, fmt.Errorf("creating counter %s: %w", def.name, err)
		}
		*def.dst = counter
	}
	return c, nil
}

// Noop returns counters that record nothing.
func Noop() *Counters {
	c, _ := New(noop.NewMeterProvider().Meter("runledger"))
	return c
}

// Inc adds one to counter with the given string attributes as key/value pairs.
func Inc(ctx context.Context, counter metric.Int64Counter, kv ...string) {
	if counter == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
