package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/runledger/internal/artifact"
	"github.com/dwsmith1983/runledger/internal/config"
	"github.com/dwsmith1983/runledger/internal/provider/sqlite"
	"github.com/dwsmith1983/runledger/internal/runs"
	"github.com/dwsmith1983/runledger/pkg/types"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Stage:    "dev",
		Provider: config.ProviderSQLite,
		SQLite:   &sqlite.Config{Path: filepath.Join(t.TempDir(), "runs.db")},
		Artifacts: config.ArtifactsConfig{
			Backend: config.BackendMinio,
			Minio:   &artifact.MinioConfig{Endpoint: "127.0.0.1:1", Bucket: "artifacts"},
		},
		GitHub: config.GitHubConfig{
			Workflow: runs.Workflow{Owner: "mwebcode", Repo: "hgc-frontend-tests", Workflow: "run-tests.yml"},
			Token:    "ghp_test",
		},
	}
}

func TestBuild_Local(t *testing.T) {
	var logs bytes.Buffer
	cfg := localConfig(t)
	a, err := Build(context.Background(), cfg, NewLogger(cfg, &logs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NotNil(t, a.Service)
	require.NotNil(t, a.Locator)
	require.NoError(t, a.Store.Ping(context.Background()))
	assert.Contains(t, logs.String(), `"provider":"sqlite"`)

	_, err = a.Service.List(context.Background(), runs.ListParams{})
	require.NoError(t, err)

	_, err = a.Service.Result(context.Background(), "missing", "")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := localConfig(t)
	cfg.Provider = "redis"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "redis"`)
}

func TestResolveSecrets_PlainValues(t *testing.T) {
	cfg := localConfig(t)
	cfg.GitHub.WebhookSecret = "hush"
	token, secret, err := resolveSecrets(context.Background(), cfg, &awsLoader{})
	require.NoError(t, err)
	assert.Equal(t, "ghp_test", token)
	assert.Equal(t, "hush", secret)
}
