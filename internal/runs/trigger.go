package runs

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// TriggerRequest asks for a new test run.
type TriggerRequest struct {
	Brand       string `json:"brand"`
	Environment string `json:"environment"`
	RunID       string `json:"runId,omitempty"`

	// Actor identifies the caller, typically the client address.
	Actor string `json:"-"`
}

// TriggerResponse describes the run created by Trigger.
type TriggerResponse struct {
	Success     bool              `json:"success"`
	RunID       string            `json:"runId"`
	Brand       types.Brand       `json:"brand"`
	Environment types.Environment `json:"environment"`
	Status      types.RunStatus   `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Message     string            `json:"message"`
}

const triggerMessage = "Test workflow triggered successfully"

func validateTrigger(req TriggerRequest) (types.Brand, types.Environment, error) {
	brand := types.Brand(req.Brand)
	if req.Brand == "" {
		return "", "", types.Validation("brand", "brand is required", types.Strings(types.Brands)...)
	}
	if !brand.Valid() {
		return "", "", types.Validation("brand", "Invalid brand. Must be one of: mweb, webafrica", types.Strings(types.Brands)...)
	}
	env := types.Environment(req.Environment)
	if req.Environment == "" {
		return "", "", types.Validation("environment", "environment is required", types.Strings(types.Environments)...)
	}
	if !env.Valid() {
		return "", "", types.Validation("environment", "Invalid environment. Must be one of: prod, staging, dev", types.Strings(types.Environments)...)
	}
	if req.RunID != "" && !validRunID.MatchString(req.RunID) {
		return "", "", types.Validation("runId", "runId may only contain letters, digits, '.', '_', ':' and '-' (max 128)")
	}
	return brand, env, nil
}

// claimRunID returns the id of a new run. A requested id that the brand
// already holds is refused; a generated one that collides falls back to a
// ULID id.
func (s *Service) claimRunID(ctx context.Context, brand types.Brand, env types.Environment, requested string, now time.Time) (string, error) {
	runID := requested
	if runID == "" {
		runID = s.newRunID(brand, env, now)
	}
	_, err := s.store.GetRun(ctx, brand, runID)
	switch {
	case errors.Is(err, provider.ErrNotFound):
		return runID, nil
	case err != nil:
		return "", types.Upstream("failed to record test run", err)
	case requested != "":
		return "", types.Validation("runId", "runId "+requested+" already exists for brand "+string(brand))
	}
	next := ULIDRunID(brand, env, now)
	s.logger.Warn("generated run id already taken", "runId", runID, "replacement", next)
	return next, nil
}

// Trigger records the intent to run the suite, dispatches the CI workflow and
// marks the run as running once the dispatch is accepted.
// A run whose dispatch outcome is unknown stays triggered until Sweep
// resolves it.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (resp *TriggerResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Trigger")
	defer func() { endSpan(span, err) }()

	brand, env, err := validateTrigger(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	runID, err := s.claimRunID(ctx, brand, env, req.RunID, now)
	if err != nil {
		return nil, err
	}
	actor := req.Actor
	if actor == "" {
		actor = "api"
	}
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.brand", string(brand)),
		attribute.String("run.environment", string(env)),
	)

	run := types.Run{
		RunID:       runID,
		Brand:       brand,
		Environment: env,
		Status:      types.RunTriggered,
		Timestamp:   now,
		Actor:       actor,
		Workflow:    s.cfg.Workflow.Workflow,
		Repository:  s.cfg.Workflow.Repository(),
		UpdatedAt:   now,
	}
	if err := s.store.PutRun(ctx, run); err != nil {
		return nil, types.Upstream("failed to record test run", err)
	}

	inputs := map[string]string{
		"brand":       string(brand),
		"environment": string(env),
		"runId":       runID,
	}
	w := s.cfg.Workflow
	if err := s.ci.DispatchWorkflow(ctx, w.Owner, w.Repo, w.Workflow, w.Ref, inputs); err != nil {
		metrics.Inc(ctx, s.metrics.DispatchFailures, "brand", string(brand))
		s.logger.Error("workflow dispatch failed", "runId", runID, "brand", brand, "environment", env, "error", err)
		return nil, types.Upstream("failed to trigger GitHub workflow", err)
	}
	metrics.Inc(ctx, s.metrics.RunsTriggered, "brand", string(brand), "environment", string(env))

	status := types.RunTriggered
	updated, err := s.store.UpdateRunStatus(ctx, run.Key(), types.RunRunning, types.RunUpdate{UpdatedAt: s.now().UTC()})
	switch {
	case err == nil:
		status = updated.Status
		run = *updated
	case errors.Is(err, provider.ErrTransitionRejected):
		// A webhook already moved the run on.
		if cur, gerr := s.store.GetRun(ctx, brand, runID); gerr == nil {
			status = cur.Status
			run = *cur
		}
	default:
		s.logger.Warn("failed to mark run running; sweep will reconcile", "runId", runID, "error", err)
	}
	s.publish(ctx, types.EventRunTriggered, run)

	s.logger.Info("test run triggered", "runId", runID, "brand", brand, "environment", env, "status", status)
	return &TriggerResponse{
		Success:     true,
		RunID:       runID,
		Brand:       brand,
		Environment: env,
		Status:      status,
		Timestamp:   now,
		Message:     triggerMessage,
	}, nil
}
