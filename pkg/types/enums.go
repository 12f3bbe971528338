// Package types defines the public domain types for tracking front-end test runs.
package types

import "slices"

// Brand identifies the site a test suite targets.
type Brand string

// Brand values enumerate the supported brand deployments.
const (
	BrandMWeb      Brand = "mweb"
	BrandWebAfrica Brand = "webafrica"
)

// Brands lists every brand in lookup order. Result lookups without an explicit
// brand try them in this order.
var Brands = []Brand{BrandMWeb, BrandWebAfrica}

// Valid reports whether b is a known brand.
func (b Brand) Valid() bool { return slices.Contains(Brands, b) }

// Environment identifies the deployment stage a run executes against.
type Environment string

// Environment values enumerate the supported deployment stages.
const (
	EnvProd    Environment = "prod"
	EnvStaging Environment = "staging"
	EnvDev     Environment = "dev"
)

// Environments lists every supported environment.
var Environments = []Environment{EnvProd, EnvStaging, EnvDev}

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool { return slices.Contains(Environments, e) }

// RunStatus represents the lifecycle state of a test run.
type RunStatus string

// RunStatus values represent the lifecycle states of a test run.
const (
	RunPending   RunStatus = "pending"
	RunTriggered RunStatus = "triggered"
	RunRunning   RunStatus = "running"
	RunPassed    RunStatus = "passed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
	RunCompleted RunStatus = "completed"
)

// RunStatuses lists every run status.
var RunStatuses = []RunStatus{
	RunPending, RunTriggered, RunRunning,
	RunPassed, RunFailed, RunCancelled, RunCompleted,
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool { return slices.Contains(RunStatuses, s) }

// EventDetailType names the detail-type of events published for run changes.
type EventDetailType string

// EventDetailType values enumerate the published run events.
const (
	EventRunTriggered EventDetailType = "Test Run Triggered"
	EventRunCompleted EventDetailType = "Test Run Completed"
	EventRunAbandoned EventDetailType = "Test Run Abandoned"
)

// Strings converts a slice of string-typed enum values to plain strings.
func Strings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}
