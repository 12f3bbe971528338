package artifact

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by ObjectStore.Stat for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore abstracts the S3-compatible bucket holding run artifacts.
type ObjectStore interface {
	// List returns every object under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Stat returns ErrObjectNotFound when key does not exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Ping reports whether the bucket is reachable.
	Ping(ctx context.Context) error
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
