package runs

import (
	"context"
	"errors"
	"strings"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

// resolveRunID finds the service run id a CI run belongs to: the dispatch
// input first, then a [runId: x] marker in the commit message or title.
func resolveRunID(wr github.WorkflowRun) string {
	for _, name := range []string{"runId", "run_id"} {
		if v := wr.Input(name); v != "" {
			return v
		}
	}
	if wr.HeadCommit != nil {
		if id, ok := github.RunIDFromCommitMessage(wr.HeadCommit.Message); ok {
			return id
		}
	}
	if id, ok := github.RunIDFromCommitMessage(wr.DisplayTitle); ok {
		return id
	}
	return ""
}

func resolveBrand(wr github.WorkflowRun, repo github.Repository, runID string) types.Brand {
	if b := types.Brand(wr.Input("brand")); b.Valid() {
		return b
	}
	if b := brandFromRunID(runID); b != "" {
		return b
	}
	name := strings.ToLower(repo.Name + " " + wr.Name)
	for _, b := range []types.Brand{types.BrandWebAfrica, types.BrandMWeb} {
		if strings.Contains(name, string(b)) {
			return b
		}
	}
	return ""
}

func resolveEnvironment(wr github.WorkflowRun, repo github.Repository) types.Environment {
	if e := types.Environment(wr.Input("environment")); e.Valid() {
		return e
	}
	name := strings.ToLower(repo.Name + " " + wr.Name + " " + wr.DisplayTitle + " " + wr.HeadBranch)
	switch {
	case strings.Contains(name, "staging"):
		return types.EnvStaging
	case strings.Contains(name, "prod"):
		return types.EnvProd
	case strings.Contains(name, "dev"):
		return types.EnvDev
	}
	return ""
}

func completionUpdate(wr github.WorkflowRun) types.RunUpdate {
	u := types.RunUpdate{
		GitHubRunID:  wr.ID,
		Conclusion:   wr.Conclusion,
		WorkflowName: wr.Name,
		RunNumber:    wr.RunNumber,
		Commit:       wr.HeadSHA,
	}
	if t, ok := wr.UpdateTime(); ok {
		u.UpdatedAt = t
	}
	if secs, ok := wr.DurationSeconds(); ok {
		u.Duration = &secs
	}
	return u
}

// applyRemote moves a stored run to the state of its CI run: a completed CI
// run maps its conclusion, an active one means running. It returns the
// stored run after the write.
func (s *Service) applyRemote(ctx context.Context, key types.RunKey, wr github.WorkflowRun) (*types.Run, error) {
	status := types.RunRunning
	update := types.RunUpdate{
		GitHubRunID:  wr.ID,
		WorkflowName: wr.Name,
		RunNumber:    wr.RunNumber,
		Commit:       wr.HeadSHA,
	}
	if wr.Completed() {
		status = lifecycle.StatusFromConclusion(wr.Conclusion)
		update = completionUpdate(wr)
	}
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = s.now().UTC()
	}
	run, err := s.store.UpdateRunStatus(ctx, key, status, update)
	if err != nil {
		return nil, err
	}
	if lifecycle.IsTerminal(run.Status) {
		s.publish(ctx, types.EventRunCompleted, *run)
	}
	return run, nil
}

func isRejected(err error) bool {
	return errors.Is(err, provider.ErrTransitionRejected)
}
