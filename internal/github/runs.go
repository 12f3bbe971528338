package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// WorkflowRun is the subset of a GitHub Actions run this service reads.
// Timestamps are kept as sent and parsed on use, so a malformed one only
// loses the value it carries.
type WorkflowRun struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	DisplayTitle string         `json:"display_title"`
	Status       string         `json:"status"`
	Conclusion   string         `json:"conclusion"`
	RunNumber    int            `json:"run_number"`
	Event        string         `json:"event"`
	WorkflowID   int64          `json:"workflow_id"`
	HeadBranch   string         `json:"head_branch"`
	HeadSHA      string         `json:"head_sha"`
	HTMLURL      string         `json:"html_url"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	RunStartedAt string         `json:"run_started_at,omitempty"`
	Actor        *User          `json:"actor,omitempty"`
	HeadCommit   *Commit        `json:"head_commit,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
}

// User is a GitHub account reference.
type User struct {
	Login string `json:"login"`
}

// Commit is the head commit of a run.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Completed reports whether GitHub has finished the run.
func (r WorkflowRun) Completed() bool {
	return r.Status == "completed"
}

// Input returns a string workflow input, or "".
func (r WorkflowRun) Input(name string) string {
	switch v := r.Inputs[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// StartTime is run_started_at, or created_at when GitHub has not recorded a
// start. ok is false when neither parses.
func (r WorkflowRun) StartTime() (time.Time, bool) {
	if t, err := types.ParseTimestamp(r.RunStartedAt); err == nil && !t.IsZero() {
		return t, true
	}
	if t, err := types.ParseTimestamp(r.CreatedAt); err == nil && !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}

// UpdateTime is updated_at; ok is false when it does not parse.
func (r WorkflowRun) UpdateTime() (time.Time, bool) {
	t, err := types.ParseTimestamp(r.UpdatedAt)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// DurationSeconds is updated_at minus the start time in whole seconds. ok is
// false when either end is missing or unparseable, or the result is negative.
func (r WorkflowRun) DurationSeconds() (secs int64, ok bool) {
	start, ok := r.StartTime()
	if !ok {
		return 0, false
	}
	end, ok := r.UpdateTime()
	if !ok {
		return 0, false
	}
	d := end.Sub(start)
	if d < 0 {
		return 0, false
	}
	return int64(d / time.Second), true
}

// ListFilter narrows ListWorkflowRuns.
type ListFilter struct {
	Event        string    // e.g. "workflow_dispatch"
	Status       string    // e.g. "completed", "in_progress"
	Branch       string
	CreatedSince time.Time // runs created at or after this instant
	PerPage      int       // default 30, max 100
}

func (f ListFilter) values() url.Values {
	q := url.Values{}
	if f.Event != "" {
		q.Set("event", f.Event)
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Branch != "" {
		q.Set("branch", f.Branch)
	}
	if !f.CreatedSince.IsZero() {
		q.Set("created", ">="+f.CreatedSince.UTC().Format(time.RFC3339))
	}
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 30
	}
	if perPage > 100 {
		perPage = 100
	}
	q.Set("per_page", strconv.Itoa(perPage))
	return q
}

type workflowRunsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

// ListWorkflowRuns returns the most recent runs of a workflow, newest first.
func (c *Client) ListWorkflowRuns(ctx context.Context, owner, repo, workflow string, filter ListFilter) ([]WorkflowRun, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(workflow))
	var out workflowRunsResponse
	if err := c.do(ctx, "list runs", http.MethodGet, path, filter.values(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.WorkflowRuns, nil
}

// GetWorkflowRun returns one run by its GitHub id.
func (c *Client) GetWorkflowRun(ctx context.Context, owner, repo string, id int64) (*WorkflowRun, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/runs/%d", url.PathEscape(owner), url.PathEscape(repo), id)
	var out WorkflowRun
	if err := c.do(ctx, "get run", http.MethodGet, path, nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
