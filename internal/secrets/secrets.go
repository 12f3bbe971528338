// Package secrets resolves credentials stored in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret strings and caches them for the life of the process.
type Resolver struct {
	client SecretsManagerAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver over client.
func NewResolver(client SecretsManagerAPI) *Resolver {
	return &Resolver{client: client, cache: make(map[string]string)}
}

// Resolve returns the secret string for ref. A ref of the form "<arn>#<key>"
// selects one field of a JSON secret.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	r.mu.Lock()
	if v, ok := r.cache[ref]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	id, key, _ := strings.Cut(ref, "#")
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", id, err)
	}
	value := aws.ToString(out.SecretString)
	if value == "" {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	if key != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
		}
		v, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("secret %s has no field %q", id, key)
		}
		value = v
	}

	r.mu.Lock()
	r.cache[ref] = value
	r.mu.Unlock()
	return value, nil
}
