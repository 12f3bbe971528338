package runs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/metrics"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// SweepReport summarizes one sweep.
type SweepReport struct {
	Examined   int `json:"examined"`
	Reconciled int `json:"reconciled"`
	Abandoned  int `json:"abandoned"`
	Unchanged  int `json:"unchanged"`
	Failed     int `json:"failed"`
}

type sweepOutcome int

const (
	outcomeUnchanged sweepOutcome = iota
	outcomeReconciled
	outcomeAbandoned
)

var activeStatuses = []types.RunStatus{types.RunPending, types.RunTriggered, types.RunRunning}

// dispatchSkew widens the CI run search window around a run's timestamp.
const dispatchSkew = time.Minute

// Sweep reconciles runs that have stayed non-terminal longer than the stale
// threshold with the CI system. Runs with no CI counterpart past the abandon
// threshold are cancelled. Failures on individual runs are counted, not
// returned.
func (s *Service) Sweep(ctx context.Context) (report *SweepReport, err error) {
	ctx, span := s.tracer.Start(ctx, "runs.Sweep")
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	stale, err := s.staleRuns(ctx, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, types.Upstream("failed to list stale test runs", err)
	}

	report = &SweepReport{Examined: len(stale)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, run := range stale {
		g.Go(func() error {
			outcome, err := s.sweepRun(gctx, run, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				s.logger.Warn("sweep failed for run", "runId", run.RunID, "brand", run.Brand, "error", err)
			case outcome == outcomeReconciled:
				report.Reconciled++
			case outcome == outcomeAbandoned:
				report.Abandoned++
			default:
				report.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sweep finished",
		"examined", report.Examined,
		"reconciled", report.Reconciled,
		"abandoned", report.Abandoned,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) staleRuns(ctx context.Context, cutoff time.Time) ([]types.Run, error) {
	var out []types.Run
	for _, status := range activeStatuses {
		q := types.RunQuery{End: cutoff, Limit: MaxListLimit}
		for {
			page, err := s.store.ListRunsByStatus(ctx, status, q)
			if err != nil {
				return nil, fmt.Errorf("listing %s runs: %w", status, err)
			}
			out = append(out, page.Runs...)
			if page.Cursor == "" {
				break
			}
			q.Cursor = page.Cursor
		}
	}
	return out, nil
}

func (s *Service) sweepRun(ctx context.Context, run types.Run, now time.Time) (sweepOutcome, error) {
	w := s.cfg.Workflow
	var match *github.WorkflowRun
	if run.GitHubRunID != 0 {
		wr, err := s.ci.GetWorkflowRun(ctx, w.Owner, w.Repo, run.GitHubRunID)
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("fetching CI run %d: %w", run.GitHubRunID, err)
		}
		match = wr
	} else {
		candidates, err := s.ci.ListWorkflowRuns(ctx, w.Owner, w.Repo, w.Workflow, github.ListFilter{
			Event:        "workflow_dispatch",
			CreatedSince: run.Timestamp.Add(-dispatchSkew),
			PerPage:      MaxListLimit,
		})
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("listing CI runs: %w", err)
		}
		match = findWorkflowRun(candidates, run.RunID)
	}

	if match == nil {
		if now.Sub(run.Timestamp) < s.cfg.AbandonAfter {
			return outcomeUnchanged, nil
		}
		return s.abandon(ctx, run, now)
	}

	if !match.Completed() && run.Status == types.RunRunning && run.GitHubRunID == match.ID {
		return outcomeUnchanged, nil
	}
	updated, err := s.applyRemote(ctx, run.Key(), *match)
	if isRejected(err) {
		return outcomeUnchanged, nil
	}
	if err != nil {
		return outcomeUnchanged, err
	}
	metrics.Inc(ctx, s.metrics.RunsReconciled, "status", string(updated.Status))
	s.logger.Info("sweep reconciled run", "runId", run.RunID, "from", run.Status, "to", updated.Status, "githubRunId", match.ID)
	return outcomeReconciled, nil
}

func (s *Service) abandon(ctx context.Context, run types.Run, now time.Time) (sweepOutcome, error) {
	reason := fmt.Sprintf("no CI run found within %s of trigger", s.cfg.AbandonAfter)
	updated, err := s.store.UpdateRunStatus(ctx, run.Key(), types.RunCancelled, types.RunUpdate{Reason: reason, UpdatedAt: now})
	if isRejected(err) {
		return outcomeUnchanged, nil
	}
	if err != nil {
		return outcomeUnchanged, err
	}
	metrics.Inc(ctx, s.metrics.RunsAbandoned, "brand", string(run.Brand))
	s.publish(ctx, types.EventRunAbandoned, *updated)
	s.logger.Warn("sweep abandoned run", "runId", run.RunID, "brand", run.Brand, "age", now.Sub(run.Timestamp).String())
	return outcomeAbandoned, nil
}

// findWorkflowRun picks the CI run carrying runID in its inputs, title or
// head commit message.
func findWorkflowRun(candidates []github.WorkflowRun, runID string) *github.WorkflowRun {
	for i := range candidates {
		wr := &candidates[i]
		if resolveRunID(*wr) == runID {
			return wr
		}
	}
	for i := range candidates {
		wr := &candidates[i]
		if containsRunID(wr.DisplayTitle, runID) || (wr.HeadCommit != nil && containsRunID(wr.HeadCommit.Message, runID)) {
			return wr
		}
	}
	return nil
}
