package dynamodb

import (
	"fmt"
	"time"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// runItem is the stored shape of a run record.
type runItem struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk"`
	GSI1SK string `dynamodbav:"gsi1sk"`

	RunID        string     `dynamodbav:"runId"`
	Brand        string     `dynamodbav:"brand"`
	Environment  string     `dynamodbav:"environment"`
	Status       string     `dynamodbav:"status"`
	Timestamp    string     `dynamodbav:"timestamp"`
	GitHubRunID  int64      `dynamodbav:"githubRunId,omitempty"`
	Commit       string     `dynamodbav:"commit,omitempty"`
	Actor        string     `dynamodbav:"actor,omitempty"`
	Workflow     string     `dynamodbav:"workflow,omitempty"`
	Repository   string     `dynamodbav:"repository,omitempty"`
	Duration     *int64     `dynamodbav:"duration,omitempty"`
	Tests        *testsItem `dynamodbav:"tests,omitempty"`
	Conclusion   string     `dynamodbav:"conclusion,omitempty"`
	WorkflowName string     `dynamodbav:"workflowName,omitempty"`
	RunNumber    int        `dynamodbav:"runNumber,omitempty"`
	Reason       string     `dynamodbav:"reason,omitempty"`
	UpdatedAt    string     `dynamodbav:"updatedAt,omitempty"`
	TTL          int64      `dynamodbav:"ttl,omitempty"`
}

type testsItem struct {
	Total   int `dynamodbav:"total"`
	Passed  int `dynamodbav:"passed"`
	Failed  int `dynamodbav:"failed"`
	Skipped int `dynamodbav:"skipped,omitempty"`
	Flaky   int `dynamodbav:"flaky,omitempty"`
}

func newTestsItem(s *types.TestSummary) *testsItem {
	if s == nil {
		return nil
	}
	return &testsItem{Total: s.Total, Passed: s.Passed, Failed: s.Failed, Skipped: s.Skipped, Flaky: s.Flaky}
}

func (t *testsItem) summary() *types.TestSummary {
	if t == nil {
		return nil
	}
	return &types.TestSummary{Total: t.Total, Passed: t.Passed, Failed: t.Failed, Skipped: t.Skipped, Flaky: t.Flaky}
}

func newRunItem(run types.Run, expiry int64) runItem {
	item := runItem{
		PK:           brandPK(run.Brand),
		SK:           runSK(run.Timestamp, run.RunID),
		GSI1PK:       statusPK(run.Status),
		GSI1SK:       timestampSK(run.Timestamp),
		RunID:        run.RunID,
		Brand:        string(run.Brand),
		Environment:  string(run.Environment),
		Status:       string(run.Status),
		Timestamp:    types.FormatTimestamp(run.Timestamp),
		GitHubRunID:  run.GitHubRunID,
		Commit:       run.Commit,
		Actor:        run.Actor,
		Workflow:     run.Workflow,
		Repository:   run.Repository,
		Duration:     run.Duration,
		Tests:        newTestsItem(run.Tests),
		Conclusion:   run.Conclusion,
		WorkflowName: run.WorkflowName,
		RunNumber:    run.RunNumber,
		Reason:       run.Reason,
		TTL:          expiry,
	}
	if !run.UpdatedAt.IsZero() {
		item.UpdatedAt = types.FormatTimestamp(run.UpdatedAt)
	}
	return item
}

func (i runItem) run() (types.Run, error) {
	ts, err := types.ParseTimestamp(i.Timestamp)
	if err != nil {
		return types.Run{}, fmt.Errorf("run %q: %w", i.RunID, err)
	}
	run := types.Run{
		RunID:        i.RunID,
		Brand:        types.Brand(i.Brand),
		Environment:  types.Environment(i.Environment),
		Status:       types.RunStatus(i.Status),
		Timestamp:    ts,
		GitHubRunID:  i.GitHubRunID,
		Commit:       i.Commit,
		Actor:        i.Actor,
		Workflow:     i.Workflow,
		Repository:   i.Repository,
		Duration:     i.Duration,
		Tests:        i.Tests.summary(),
		Conclusion:   i.Conclusion,
		WorkflowName: i.WorkflowName,
		RunNumber:    i.RunNumber,
		Reason:       i.Reason,
	}
	if i.UpdatedAt != "" {
		if u, err := types.ParseTimestamp(i.UpdatedAt); err == nil {
			run.UpdatedAt = u
		}
	}
	if i.TTL > 0 {
		run.ExpiresAt = time.Unix(i.TTL, 0).UTC()
	}
	return run, nil
}
