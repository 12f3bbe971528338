package github

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// EventWorkflowRun is the X-GitHub-Event value for workflow run events.
const EventWorkflowRun = "workflow_run"

// ActionCompleted is the workflow_run action sent when a run finishes.
const ActionCompleted = "completed"

// Repository identifies the repository an event came from.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// WorkflowRunEvent is the payload of a workflow_run webhook.
type WorkflowRunEvent struct {
	Action      string      `json:"action"`
	WorkflowRun WorkflowRun `json:"workflow_run"`
	Repository  Repository  `json:"repository"`
	Sender      *User       `json:"sender,omitempty"`
}

// ParseWorkflowRunEvent decodes a workflow_run payload.
func ParseWorkflowRunEvent(body []byte) (*WorkflowRunEvent, error) {
	var ev WorkflowRunEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid workflow_run payload: %w", err)
	}
	return &ev, nil
}

var runIDMarker = regexp.MustCompile(`\[runId:\s*([^\]]+)\]`)

// RunIDFromCommitMessage extracts the id from a "[runId: <id>]" marker in a
// commit message or run title.
func RunIDFromCommitMessage(msg string) (string, bool) {
	m := runIDMarker.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	id := strings.TrimSpace(m[1])
	return id, id != ""
}
