// Package provider defines the storage backend interface for run records.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dwsmith1983/runledger/internal/lifecycle"
	"github.com/dwsmith1983/runledger/pkg/types"
)

var (
	// ErrNotFound is returned when no record matches the requested run.
	ErrNotFound = errors.New("run not found")

	// ErrTransitionRejected is returned when a conditional status update
	// fails because the stored status does not permit the transition.
	ErrTransitionRejected = errors.New("status transition rejected")
)

// RejectTransition is the error a store returns when the stored status from
// refused an update to to. It wraps ErrTransitionRejected.
func RejectTransition(runID string, from, to types.RunStatus) error {
	if err := lifecycle.Transition(from, to); err != nil {
		return fmt.Errorf("%w: run %q: %w", ErrTransitionRejected, runID, err)
	}
	return fmt.Errorf("%w: run %q is already %s", ErrTransitionRejected, runID, from)
}

// DefaultRetentionDays is how long a run record is kept before its expiry
// marker makes it eligible for deletion.
const DefaultRetentionDays = 90

// RetentionStart is the instant a run's retention window counts from: its
// creation time, or now for a run without one.
func RetentionStart(created, now time.Time) time.Time {
	if created.IsZero() {
		return now
	}
	return created
}

// Provider is the storage backend interface. DynamoDB serves deployed
// environments; SQLite serves local development.
type Provider interface {
	// PutRun writes the full record, computing index keys and expiry.
	// A record with identical keys is overwritten.
	PutRun(ctx context.Context, run types.Run) error

	// GetRun returns the run with the given id in the brand's partition,
	// or ErrNotFound.
	GetRun(ctx context.Context, brand types.Brand, runID string) (*types.Run, error)

	// ListRunsByBrand lists a brand's runs, newest first.
	ListRunsByBrand(ctx context.Context, brand types.Brand, q types.RunQuery) (*types.RunPage, error)

	// ListRunsByStatus lists runs with the given status across brands, newest
	// first. q.Brand, when set, restricts the result to one brand.
	ListRunsByStatus(ctx context.Context, status types.RunStatus, q types.RunQuery) (*types.RunPage, error)

	// UpdateRunStatus sets the status and the fields of update on an existing
	// run. The write only succeeds if the stored status may transition to
	// status; otherwise ErrTransitionRejected is returned. A zero key
	// timestamp makes the store locate the record first.
	UpdateRunStatus(ctx context.Context, key types.RunKey, status types.RunStatus, update types.RunUpdate) (*types.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
