package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchWorkflow_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/mwebcode/hgc-frontend-tests/actions/workflows/run-tests.yml/dispatches", r.URL.Path)
		assert.Equal(t, "token secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))

		var body dispatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "main", body.Ref)
		assert.Equal(t, map[string]string{"brand": "mweb", "environment": "prod", "runId": "mweb-prod-1"}, body.Inputs)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New("secret-token", WithBaseURL(srv.URL))
	err := c.DispatchWorkflow(context.Background(), "mwebcode", "hgc-frontend-tests", "run-tests.yml", "",
		map[string]string{"brand": "mweb", "environment": "prod", "runId": "mweb-prod-1"})
	require.NoError(t, err)
}

func TestDispatchWorkflow_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Unexpected inputs provided"}`))
	}))
	defer srv.Close()

	err := New("t", WithBaseURL(srv.URL)).DispatchWorkflow(context.Background(), "o", "r", "w.yml", "main", nil)
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	assert.Contains(t, se.Body, "Unexpected inputs")
}

func TestDispatchWorkflow_OKIsNotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New("t", WithBaseURL(srv.URL)).DispatchWorkflow(context.Background(), "o", "r", "w.yml", "main", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusOK, se.StatusCode)
}

func TestDispatchWorkflow_RequiresTarget(t *testing.T) {
	err := New("t").DispatchWorkflow(context.Background(), "", "r", "w.yml", "main", nil)
	assert.Error(t, err)
}

func TestListWorkflowRuns(t *testing.T) {
	since := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/repos/o/r/actions/workflows/run-tests.yml/runs", r.URL.Path)
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		assert.Equal(t, ">=2025-06-03T14:00:00Z", r.URL.Query().Get("created"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`{
			"total_count": 1,
			"workflow_runs": [{
				"id": 9001,
				"name": "Front-end tests",
				"display_title": "Tests [runId: mweb-prod-20250603-140000]",
				"status": "in_progress",
				"run_number": 17,
				"created_at": "2025-06-03T14:00:05Z",
				"updated_at": "2025-06-03T14:01:00Z"
			}]
		}`))
	}))
	defer srv.Close()

	runs, err := New("t", WithBaseURL(srv.URL)).ListWorkflowRuns(context.Background(), "o", "r", "run-tests.yml",
		ListFilter{Event: "workflow_dispatch", CreatedSince: since, PerPage: 50})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(9001), runs[0].ID)
	assert.Equal(t, 17, runs[0].RunNumber)
	assert.False(t, runs[0].Completed())
	id, ok := RunIDFromCommitMessage(runs[0].DisplayTitle)
	assert.True(t, ok)
	assert.Equal(t, "mweb-prod-20250603-140000", id)
}

func TestGetWorkflowRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/o/r/actions/runs/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 42, "status": "completed", "conclusion": "failure", "head_sha": "abc"}`))
	}))
	defer srv.Close()

	run, err := New("t", WithBaseURL(srv.URL)).GetWorkflowRun(context.Background(), "o", "r", 42)
	require.NoError(t, err)
	assert.True(t, run.Completed())
	assert.Equal(t, "failure", run.Conclusion)
	assert.Equal(t, "abc", run.HeadSHA)
}

func TestGetWorkflowRun_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := New("t", WithBaseURL(srv.URL)).GetWorkflowRun(context.Background(), "o", "r", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing response")
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New("t", WithBaseURL(srv.URL), WithBreaker(BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}))
	for i := 0; i < 2; i++ {
		var se *StatusError
		err := c.DispatchWorkflow(context.Background(), "o", "r", "w.yml", "main", nil)
		require.True(t, errors.As(err, &se))
	}

	err := c.DispatchWorkflow(context.Background(), "o", "r", "w.yml", "main", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New("t", WithBaseURL(srv.URL), WithBreaker(BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}))
	for i := 0; i < 4; i++ {
		err := c.DispatchWorkflow(context.Background(), "o", "r", "w.yml", "main", nil)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestDurationSeconds(t *testing.T) {
	run := WorkflowRun{CreatedAt: "2025-06-03T14:00:00Z", UpdatedAt: "2025-06-03T14:01:35Z"}
	secs, ok := run.DurationSeconds()
	assert.True(t, ok)
	assert.Equal(t, int64(95), secs)

	run.RunStartedAt = "2025-06-03T14:00:10Z"
	secs, ok = run.DurationSeconds()
	assert.True(t, ok)
	assert.Equal(t, int64(85), secs)

	run.UpdatedAt = "2025-06-03T14:00:00Z"
	_, ok = run.DurationSeconds()
	assert.False(t, ok)

	_, ok = WorkflowRun{UpdatedAt: "2025-06-03T14:00:00Z"}.DurationSeconds()
	assert.False(t, ok)

	_, ok = WorkflowRun{CreatedAt: "2025-06-03T14:00:00Z", UpdatedAt: "not-a-time"}.DurationSeconds()
	assert.False(t, ok)
}

func TestStartTime(t *testing.T) {
	start, ok := WorkflowRun{RunStartedAt: "bad", CreatedAt: "2025-06-03T14:00:00"}.StartTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC), start)

	_, ok = WorkflowRun{CreatedAt: ""}.StartTime()
	assert.False(t, ok)
}

func TestInput(t *testing.T) {
	run := WorkflowRun{Inputs: map[string]any{"runId": "r1", "debug": true}}
	assert.Equal(t, "r1", run.Input("runId"))
	assert.Equal(t, "true", run.Input("debug"))
	assert.Equal(t, "", run.Input("brand"))
}
