// Package lifecycle implements the test run state machine.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/runledger/pkg/types"
)

var terminal = []types.RunStatus{types.RunPassed, types.RunFailed, types.RunCancelled, types.RunCompleted}

// Transition table: from -> allowed tos. Pending and triggered runs may jump
// straight to a terminal status. Terminal runs only move between terminal
// statuses (workflow re-runs).
var validTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunPending:   append([]types.RunStatus{types.RunTriggered, types.RunRunning}, terminal...),
	types.RunTriggered: append([]types.RunStatus{types.RunRunning}, terminal...),
	types.RunRunning:   terminal,
	types.RunPassed:    terminal,
	types.RunFailed:    terminal,
	types.RunCancelled: terminal,
	types.RunCompleted: terminal,
}

// CanTransition checks if transitioning from one run status to another is valid.
// Re-applying the current status is always valid.
func CanTransition(from, to types.RunStatus) bool {
	if from == to {
		return from.Valid()
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new status, or an error if the transition is invalid.
func Transition(from, to types.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// AllowedFrom returns every status from which to may be reached, including
// to itself. Stores use it to build conditional updates.
func AllowedFrom(to types.RunStatus) []types.RunStatus {
	var out []types.RunStatus
	for _, from := range types.RunStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.RunStatus) bool {
	switch status {
	case types.RunPassed, types.RunFailed, types.RunCancelled, types.RunCompleted:
		return true
	}
	return false
}

// StatusFromConclusion maps a CI workflow conclusion to a run status.
// Unknown conclusions map to failed.
func StatusFromConclusion(conclusion string) types.RunStatus {
	switch conclusion {
	case "success":
		return types.RunPassed
	case "cancelled", "skipped":
		return types.RunCancelled
	case "failure", "timed_out", "action_required":
		return types.RunFailed
	default:
		return types.RunFailed
	}
}
