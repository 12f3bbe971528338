package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for run timestamps in
// storage keys. Fixed width keeps lexicographic and chronological order equal.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored run timestamp. Besides RFC 3339 it accepts
// zone-less ISO-8601 values, which are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// TestSummary holds per-run test counts reported by the suite.
type TestSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped,omitempty"`
	Flaky   int `json:"flaky,omitempty"`
}

// Run is a single execution of the front-end test suite against one brand
// and environment.
type Run struct {
	RunID        string       `json:"runId"`
	Brand        Brand        `json:"brand"`
	Environment  Environment  `json:"environment"`
	Status       RunStatus    `json:"status"`
	Timestamp    time.Time    `json:"timestamp"`
	GitHubRunID  int64        `json:"githubRunId,omitempty"`
	Commit       string       `json:"commit,omitempty"`
	Actor        string       `json:"actor,omitempty"`
	Workflow     string       `json:"workflow,omitempty"`
	Repository   string       `json:"repository,omitempty"`
	Duration     *int64       `json:"duration,omitempty"`
	Tests        *TestSummary `json:"tests,omitempty"`
	Conclusion   string       `json:"conclusion,omitempty"`
	WorkflowName string       `json:"workflowName,omitempty"`
	RunNumber    int          `json:"runNumber,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt,omitzero"`
	ExpiresAt    time.Time    `json:"-"`
}

// Key returns the identity of the run, including its creation timestamp.
func (r Run) Key() RunKey {
	return RunKey{Brand: r.Brand, RunID: r.RunID, Timestamp: r.Timestamp}
}

// RunKey identifies a run. A zero Timestamp means the caller does not know
// the creation time and the store must look the record up first.
type RunKey struct {
	Brand     Brand
	RunID     string
	Timestamp time.Time
}

// RunUpdate carries the optional fields applied alongside a status change.
// Zero values are left untouched.
type RunUpdate struct {
	GitHubRunID  int64
	Commit       string
	Conclusion   string
	WorkflowName string
	RunNumber    int
	Duration     *int64
	Tests        *TestSummary
	Reason       string
	UpdatedAt    time.Time
}

// Apply copies the set fields of u onto r.
func (u RunUpdate) Apply(r *Run) {
	if u.GitHubRunID != 0 {
		r.GitHubRunID = u.GitHubRunID
	}
	if u.Commit != "" {
		r.Commit = u.Commit
	}
	if u.Conclusion != "" {
		r.Conclusion = u.Conclusion
	}
	if u.WorkflowName != "" {
		r.WorkflowName = u.WorkflowName
	}
	if u.RunNumber != 0 {
		r.RunNumber = u.RunNumber
	}
	if u.Duration != nil {
		d := *u.Duration
		r.Duration = &d
	}
	if u.Tests != nil {
		t := *u.Tests
		r.Tests = &t
	}
	if u.Reason != "" {
		r.Reason = u.Reason
	}
	if !u.UpdatedAt.IsZero() {
		r.UpdatedAt = u.UpdatedAt
	}
}

// RunQuery bounds a run listing.
type RunQuery struct {
	Brand  Brand // filter applied to status listings; empty means all brands
	Start  time.Time
	End    time.Time
	Limit  int
	Cursor string
}

// RunPage is one page of a run listing. Cursor is empty on the last page.
type RunPage struct {
	Runs   []Run
	Cursor string
}

// ArtifactItem is one object discovered under a run's artifact prefixes.
type ArtifactItem struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Artifacts groups a run's stored objects by kind. When Error is set the
// lookup failed and only the error fields are rendered.
type Artifacts struct {
	Screenshots []ArtifactItem `json:"screenshots"`
	Videos      []ArtifactItem `json:"videos"`
	Traces      []ArtifactItem `json:"traces"`
	Reports     []ArtifactItem `json:"reports"`

	// HTMLReportURL and Metadata link the run's index.html and metadata.json
	// when they were uploaded.
	HTMLReportURL string `json:"htmlReportUrl,omitempty"`
	Metadata      string `json:"metadata,omitempty"`

	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewArtifacts returns an Artifacts value with every category empty but non-nil.
func NewArtifacts() *Artifacts {
	return &Artifacts{
		Screenshots: []ArtifactItem{},
		Videos:      []ArtifactItem{},
		Traces:      []ArtifactItem{},
		Reports:     []ArtifactItem{},
	}
}

// MarshalJSON renders only the error fields for a failed lookup.
func (a Artifacts) MarshalJSON() ([]byte, error) {
	if a.Error != "" {
		return json.Marshal(struct {
			Error   string `json:"error"`
			Details string `json:"details,omitempty"`
		}{a.Error, a.Details})
	}
	type plain Artifacts
	return json.Marshal(plain(a))
}

// RunResult is a run record enriched with its artifacts.
type RunResult struct {
	Run
	Artifacts *Artifacts `json:"artifacts,omitempty"`
	ReportURL string     `json:"reportUrl,omitempty"`
}
