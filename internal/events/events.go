// Package events publishes run lifecycle events to Amazon EventBridge.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// Source is the EventBridge source of every event this service emits.
const Source = "runledger.frontend-tests"

// EventBridgeAPI is the subset of the EventBridge client used by Publisher.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// RunDetail is the event detail document.
type RunDetail struct {
	RunID       string            `json:"runId"`
	Brand       types.Brand       `json:"brand"`
	Environment types.Environment `json:"environment"`
	Status      types.RunStatus   `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	GitHubRunID int64             `json:"githubRunId,omitempty"`
	Conclusion  string            `json:"conclusion,omitempty"`
	Duration    *int64            `json:"duration,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

// Publisher sends run events to one event bus.
type Publisher struct {
	client  EventBridgeAPI
	busName string
}

// NewPublisher creates a publisher for busName.
func NewPublisher(client EventBridgeAPI, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// Publish sends a single event describing run.
func (p *Publisher) Publish(ctx context.Context, detailType types.EventDetailType, run types.Run) error {
	detail, err := json.Marshal(RunDetail{
		RunID:       run.RunID,
		Brand:       run.Brand,
		Environment: run.Environment,
		Status:      run.Status,
		Timestamp:   run.Timestamp,
		GitHubRunID: run.GitHubRunID,
		Conclusion:  run.Conclusion,
		Duration:    run.Duration,
		Reason:      run.Reason,
	})
	if err != nil {
		return fmt.Errorf("marshaling event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(Source),
			DetailType:   aws.String(string(detailType)),
			Detail:       aws.String(string(detail)),
			Resources:    []string{run.RunID},
		}},
	})
	if err != nil {
		return fmt.Errorf("publishing %s for %s: %w", detailType, run.RunID, err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		e := out.Entries[0]
		return fmt.Errorf("publishing %s for %s: %s: %s", detailType, run.RunID,
			aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
	}
	return nil
}
