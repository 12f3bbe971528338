package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/github"
	"github.com/dwsmith1983/runledger/internal/provider"
	"github.com/dwsmith1983/runledger/pkg/types"
)

const testSecret = "s3cret"

func workflowRun(id int64, conclusion string, inputs map[string]any) github.WorkflowRun {
	started := testNow.Add(-10 * time.Minute)
	return github.WorkflowRun{
		ID:           id,
		Name:         "Frontend Tests",
		DisplayTitle: "Frontend Tests",
		Status:       "completed",
		Conclusion:   conclusion,
		RunNumber:    7,
		HeadSHA:      "abc123",
		CreatedAt:    types.FormatTimestamp(started.Add(-time.Minute)),
		RunStartedAt: types.FormatTimestamp(started),
		UpdatedAt:    types.FormatTimestamp(testNow),
		Actor:        &github.User{Login: "octocat"},
		Inputs:       inputs,
	}
}

func webhookBody(t *testing.T, action string, wr github.WorkflowRun) []byte {
	t.Helper()
	body, err := json.Marshal(github.WorkflowRunEvent{
		Action:      action,
		WorkflowRun: wr,
		Repository:  github.Repository{Name: "hgc-frontend-tests", FullName: "mwebcode/hgc-frontend-tests"},
	})
	require.NoError(t, err)
	return body
}

func signed(body []byte) WebhookRequest {
	return WebhookRequest{
		Event:     github.EventWorkflowRun,
		Delivery:  "delivery-1",
		Signature: github.Sign([]byte(testSecret), body),
		Body:      body,
	}
}

func withSecret(d *Deps) { d.Config.WebhookSecret = testSecret }

func TestWebhook_SignatureRequiredWhenSecretSet(t *testing.T) {
	env := newTestEnv(t, withSecret)
	body := webhookBody(t, "completed", workflowRun(1, "success", nil))

	req := signed(body)
	req.Signature = ""
	_, err := env.svc.Webhook(context.Background(), req)
	requireKind(t, err, types.KindUnauthorized)

	req.Signature = github.Sign([]byte("other"), body)
	_, err = env.svc.Webhook(context.Background(), req)
	requireKind(t, err, types.KindUnauthorized)

	// Checked before the event filter.
	req.Event = "push"
	_, err = env.svc.Webhook(context.Background(), req)
	requireKind(t, err, types.KindUnauthorized)
}

func TestWebhook_UnsignedAcceptedWithoutSecret(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "ping", Body: []byte(`{}`)})
	require.NoError(t, err)
}

func TestWebhook_IgnoresOtherEventsAndActions(t *testing.T) {
	env := newTestEnv(t, withSecret)

	req := signed([]byte(`{"zen":"hi"}`))
	req.Event = "ping"
	resp, err := env.svc.Webhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Ignored event type: ping", resp.Message)
	assert.Equal(t, "delivery-1", resp.Delivery)

	resp, err = env.svc.Webhook(context.Background(), signed(webhookBody(t, "requested", workflowRun(1, "", nil))))
	require.NoError(t, err)
	assert.Equal(t, "Ignored action: requested", resp.Message)
	assert.Zero(t, env.prov.UpdateCount())
}

func TestWebhook_MalformedPayload(t *testing.T) {
	env := newTestEnv(t, withSecret)
	_, err := env.svc.Webhook(context.Background(), signed([]byte(`{"action":`)))
	requireKind(t, err, types.KindValidation)
}

func TestWebhook_CompletesKnownRun(t *testing.T) {
	env := newTestEnv(t, withSecret)
	env.seed(t, seedRun(types.BrandMWeb, "mweb-prod-1", types.RunRunning, testNow.Add(-15*time.Minute)))

	wr := workflowRun(555, "success", map[string]any{"runId": "mweb-prod-1", "brand": "mweb", "environment": "prod"})
	resp, err := env.svc.Webhook(context.Background(), signed(webhookBody(t, "completed", wr)))
	require.NoError(t, err)
	assert.Equal(t, "Webhook processed successfully", resp.Message)
	assert.Equal(t, types.RunPassed, resp.Status)
	assert.Equal(t, int64(555), resp.GitHubRunID)
	assert.Equal(t, "mweb-prod-1", resp.RunID)
	require.NotNil(t, resp.Duration)
	assert.Equal(t, int64(600), *resp.Duration)
	assert.False(t, resp.Created)

	run := env.stored(t, types.BrandMWeb, "mweb-prod-1")
	assert.Equal(t, types.RunPassed, run.Status)
	assert.Equal(t, int64(555), run.GitHubRunID)
	assert.Equal(t, "success", run.Conclusion)
	assert.Equal(t, "abc123", run.Commit)
	assert.Equal(t, 7, run.RunNumber)
	require.NotNil(t, run.Duration)
	assert.Equal(t, int64(600), *run.Duration)
	assert.Equal(t, []types.EventDetailType{types.EventRunCompleted}, env.pub.Types())
}

func TestWebhook_ConclusionMapping(t *testing.T) {
	tests := []struct {
		conclusion string
		want       types.RunStatus
	}{
		{"success", types.RunPassed},
		{"failure", types.RunFailed},
		{"timed_out", types.RunFailed},
		{"cancelled", types.RunCancelled},
		{"skipped", types.RunCancelled},
		{"neutral", types.RunFailed},
	}
	for _, tt := range tests {
		t.Run(tt.conclusion, func(t *testing.T) {
			env := newTestEnv(t)
			env.seed(t, seedRun(types.BrandWebAfrica, "wa-1", types.RunTriggered, testNow))
			wr := workflowRun(9, tt.conclusion, map[string]any{"run_id": "wa-1", "brand": "webafrica"})

			resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, tt.want, env.stored(t, types.BrandWebAfrica, "wa-1").Status)
		})
	}
}

func TestWebhook_RunIDFromCommitMarker(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRun(types.BrandMWeb, "mweb-dev-20250603-133000", types.RunRunning, testNow))
	wr := workflowRun(10, "failure", nil)
	wr.HeadCommit = &github.Commit{Message: "chore: nightly [runId: mweb-dev-20250603-133000]"}

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.Equal(t, "mweb-dev-20250603-133000", resp.RunID)
	assert.Equal(t, types.BrandMWeb, resp.Brand)
	assert.Equal(t, types.RunFailed, env.stored(t, types.BrandMWeb, "mweb-dev-20250603-133000").Status)
}

func TestWebhook_CreatesUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	wr := workflowRun(77, "success", map[string]any{"runId": "manual-1", "brand": "webafrica", "environment": "staging"})

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.True(t, resp.Created)

	run := env.stored(t, types.BrandWebAfrica, "manual-1")
	assert.Equal(t, types.RunPassed, run.Status)
	assert.Equal(t, types.EnvStaging, run.Environment)
	assert.Equal(t, "octocat", run.Actor)
	assert.Equal(t, "mwebcode/hgc-frontend-tests", run.Repository)
	assert.Equal(t, wr.RunStartedAt, types.FormatTimestamp(run.Timestamp))
	assert.Equal(t, int64(77), run.GitHubRunID)
}

func TestWebhook_CreatesFallbackID(t *testing.T) {
	env := newTestEnv(t)
	wr := workflowRun(88, "cancelled", nil)
	wr.Name = "mweb staging smoke"

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "github-88", resp.RunID)

	run := env.stored(t, types.BrandMWeb, "github-88")
	assert.Equal(t, types.RunCancelled, run.Status)
	assert.Equal(t, types.EnvStaging, run.Environment)
}

func TestWebhook_UnmatchedIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	wr := workflowRun(99, "success", nil)

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.Equal(t, webhookUnmatched, resp.Message)
	assert.Empty(t, env.prov.Runs())
}

func TestWebhook_RejectedTransitionIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)
	env.prov.UpdateErr = fmt.Errorf("%w: run is passed", provider.ErrTransitionRejected)
	wr := workflowRun(5, "failure", map[string]any{"runId": "mweb-prod-1"})

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.Equal(t, webhookRejected, resp.Message)
	assert.Empty(t, env.pub.Types())
}

func TestWebhook_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.prov.UpdateErr = errors.New("throttled")
	wr := workflowRun(5, "success", map[string]any{"runId": "mweb-prod-1"})

	_, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	requireKind(t, err, types.KindUpstream)
}

func TestWebhook_NegativeDurationOmitted(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRun(types.BrandMWeb, "mweb-prod-1", types.RunRunning, testNow))
	wr := workflowRun(5, "success", map[string]any{"runId": "mweb-prod-1"})
	wr.RunStartedAt = types.FormatTimestamp(testNow.Add(time.Hour))

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.Nil(t, resp.Duration)
	assert.Nil(t, env.stored(t, types.BrandMWeb, "mweb-prod-1").Duration)
}

func TestWebhook_UnparseableTimestampsOmitDuration(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, seedRun(types.BrandMWeb, "mweb-prod-1", types.RunRunning, testNow.Add(-time.Hour)))
	wr := workflowRun(5, "success", map[string]any{"runId": "mweb-prod-1"})
	wr.CreatedAt = ""
	wr.RunStartedAt = ""
	wr.UpdatedAt = "not-a-time"

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.Equal(t, webhookProcessed, resp.Message)
	assert.Nil(t, resp.Duration)

	run := env.stored(t, types.BrandMWeb, "mweb-prod-1")
	assert.Equal(t, types.RunPassed, run.Status)
	assert.Nil(t, run.Duration)
	assert.False(t, run.UpdatedAt.IsZero())
}

func TestWebhook_UnparseableTimestampsOnNewRun(t *testing.T) {
	env := newTestEnv(t)
	wr := workflowRun(78, "failure", map[string]any{"runId": "manual-2", "brand": "mweb", "environment": "prod"})
	wr.CreatedAt = "yesterday"
	wr.RunStartedAt = ""

	resp, err := env.svc.Webhook(context.Background(), WebhookRequest{Event: "workflow_run", Body: webhookBody(t, "completed", wr)})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Nil(t, resp.Duration)

	run := env.stored(t, types.BrandMWeb, "manual-2")
	assert.Equal(t, types.RunFailed, run.Status)
	assert.True(t, run.Timestamp.Equal(testNow))
}

func TestResolveEnvironment(t *testing.T) {
	repo := github.Repository{Name: "hgc-frontend-tests"}
	tests := []struct {
		name string
		wr   github.WorkflowRun
		want types.Environment
	}{
		{"input", github.WorkflowRun{Inputs: map[string]any{"environment": "dev"}, Name: "staging"}, types.EnvDev},
		{"staging name", github.WorkflowRun{Name: "Staging regression"}, types.EnvStaging},
		{"production title", github.WorkflowRun{DisplayTitle: "Production smoke"}, types.EnvProd},
		{"dev branch", github.WorkflowRun{HeadBranch: "develop"}, types.EnvDev},
		{"unknown", github.WorkflowRun{Name: "Frontend Tests"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveEnvironment(tt.wr, repo), tt.name)
	}
}
