package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// WebhookRequest is a raw webhook delivery.
type WebhookRequest struct {
	Event     string
	Delivery  string
	Signature string
	Body      []byte
}

// WebhookResponse reports what a delivery did.
type WebhookResponse struct {
	Message     string            `json:"message"`
	Delivery    string            `json:"delivery,omitempty"`
	Action      string            `json:"action,omitempty"`
	Status      types.RunStatus   `json:"status,omitempty"`
	GitHubRunID int64             `json:"githubRunId,omitempty"`
	RunID       string            `json:"customRunId,omitempty"`
	Brand       types.Brand       `json:"brand,omitempty"`
	Environment types.Environment `json:"environment,omitempty"`
	Duration    *int64            `json:"duration,omitempty"`
	Created     bool              `json:"created,omitempty"`
}

// Webhook messages.
const (
	webhookProcessed = "Webhook processed successfully"
	webhookRejected  = "Webhook processed; run already in a later state"
	webhookUnmatched = "Webhook processed; no matching test run"
)

// Webhook verifies and applies a GitHub workflow_run delivery. Only completed
// runs change state; other events and actions are acknowledged and ignored.
// A completion for an unknown run creates the record when brand and
// environment can be determined.
func (s *Service) Webhook(ctx context.Context, req WebhookRequest) (resp *WebhookResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Webhook")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("github.delivery", req.Delivery), attribute.String("github.event", req.Event))

	if s.cfg.WebhookSecret != "" {
		if req.Signature == "" || !github.VerifySignature([]byte(s.cfg.WebhookSecret), req.Body, req.Signature) {
			metrics.Inc(ctx, s.metrics.SignatureRejections)
			s.logger.Warn("webhook signature rejected", "delivery", req.Delivery)
			return nil, types.Unauthorized("Invalid webhook signature")
		}
	}

	if req.Event != github.EventWorkflowRun {
		return &WebhookResponse{Message: "Ignored event type: " + req.Event, Delivery: req.Delivery}, nil
	}
	ev, err := github.ParseWorkflowRunEvent(req.Body)
	if err != nil {
		return nil, types.Validation("body", "Invalid JSON in webhook payload")
	}
	if ev.Action != github.ActionCompleted {
		return &WebhookResponse{Message: "Ignored action: " + ev.Action, Delivery: req.Delivery, Action: ev.Action}, nil
	}

	wr := ev.WorkflowRun
	wr.Status = "completed"
	runID := resolveRunID(wr)
	brand := resolveBrand(wr, ev.Repository, runID)
	env := resolveEnvironment(wr, ev.Repository)
	status := lifecycle.StatusFromConclusion(wr.Conclusion)

	resp = &WebhookResponse{
		Message:     webhookProcessed,
		Delivery:    req.Delivery,
		Action:      ev.Action,
		Status:      status,
		GitHubRunID: wr.ID,
		RunID:       runID,
		Brand:       brand,
		Environment: env,
	}
	if secs, ok := wr.DurationSeconds(); ok {
		resp.Duration = &secs
	}

	if runID != "" && brand != "" {
		run, err := s.applyRemote(ctx, types.RunKey{Brand: brand, RunID: runID}, wr)
		switch {
		case err == nil:
			metrics.Inc(ctx, s.metrics.WebhooksProcessed, "status", string(run.Status))
			resp.Status = run.Status
			resp.Environment = run.Environment
			s.logger.Info("webhook applied", "delivery", req.Delivery, "runId", runID, "status", run.Status)
			return resp, nil
		case isRejected(err):
			s.logger.Warn("webhook transition rejected", "delivery", req.Delivery, "runId", runID, "status", status, "error", err)
			resp.Message = webhookRejected
			return resp, nil
		case !errors.Is(err, provider.ErrNotFound):
			return nil, types.Upstream("failed to update test run", err)
		}
	}

	if brand == "" || env == "" {
		s.logger.Info("webhook matched no run", "delivery", req.Delivery, "githubRunId", wr.ID, "runId", runID)
		resp.Message = webhookUnmatched
		return resp, nil
	}

	run := runFromWorkflow(wr, ev.Repository, runID, brand, env, s.now().UTC())
	if err := s.store.PutRun(ctx, run); err != nil {
		return nil, types.Upstream("failed to record test run", err)
	}
	metrics.Inc(ctx, s.metrics.WebhooksProcessed, "status", string(run.Status))
	s.publish(ctx, types.EventRunCompleted, run)
	s.logger.Info("webhook created run", "delivery", req.Delivery, "runId", run.RunID, "status", run.Status)
	resp.RunID = run.RunID
	resp.Created = true
	return resp, nil
}

// runFromWorkflow builds the record of a CI run the service never saw
// dispatched.
func runFromWorkflow(wr github.WorkflowRun, repo github.Repository, runID string, brand types.Brand, env types.Environment, now time.Time) types.Run {
	if runID == "" {
		runID = fmt.Sprintf("github-%d", wr.ID)
	}
	ts, ok := wr.StartTime()
	if !ok {
		ts = now
	}
	actor := "unknown"
	if wr.Actor != nil && wr.Actor.Login != "" {
		actor = wr.Actor.Login
	}
	run := types.Run{
		RunID:       runID,
		Brand:       brand,
		Environment: env,
		Status:      lifecycle.StatusFromConclusion(wr.Conclusion),
		Timestamp:   ts,
		Actor:       actor,
		Repository:  repo.FullName,
		UpdatedAt:   now,
	}
	completionUpdate(wr).Apply(&run)
	return run
}
