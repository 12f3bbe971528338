package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type dispatchRequest struct {
	Ref    string            `json:"ref"`
	Inputs map[string]string `json:"inputs"`
}

// DispatchWorkflow fires a workflow_dispatch event. GitHub answers 204 with
// no body; the id of the resulting run is not returned.
func (c *Client) DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string, inputs map[string]string) error {
	if owner == "" || repo == "" || workflow == "" {
		return fmt.Errorf("github dispatch: owner, repo and workflow are required")
	}
	if ref == "" {
		ref = "main"
	}
	if inputs == nil {
		inputs = map[string]string{}
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches",
		url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(workflow))
	return c.do(ctx, "dispatch", http.MethodPost, path, nil, dispatchRequest{Ref: ref, Inputs: inputs}, http.StatusNoContent, nil)
}
