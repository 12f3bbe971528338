package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioConfig_Validate(t *testing.T) {
	assert.Error(t, MinioConfig{Bucket: "b"}.validate())
	assert.Error(t, MinioConfig{Endpoint: "localhost:9000"}.validate())
	assert.NoError(t, MinioConfig{Endpoint: "localhost:9000", Bucket: "b"}.validate())
}

func TestMinioStore_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/test-artifacts") {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewMinioStore(MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "test-artifacts",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	assert.NoError(t, store.Ping(context.Background()))

	missing, err := NewMinioStore(MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "other",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	assert.Error(t, missing.Ping(context.Background()))
}
