package association

import (
	"fmt"
	"time"
)

// CompatibilityError is returned when a binding names a behavior pattern the
// distribution does not have.
type CompatibilityError struct {
	FunctionName   string
	DistributionID string
	PathPattern    string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("distribution %s has no behavior matching pattern %q, unable to associate function %s",
		e.DistributionID, e.PathPattern, e.FunctionName)
}

// FunctionNotDeployedError is returned when a configured function is missing
// from the target stage.
type FunctionNotDeployedError struct {
	FunctionName string
}

func (e *FunctionNotDeployedError) Error() string {
	return fmt.Sprintf("function %s is not deployed", e.FunctionName)
}

// DistributionNotFoundError is returned when a referenced distribution does
// not exist.
type DistributionNotFoundError struct {
	DistributionID string
	Err            error
}

func (e *DistributionNotFoundError) Error() string {
	return fmt.Sprintf("distribution %s not found", e.DistributionID)
}

func (e *DistributionNotFoundError) Unwrap() error { return e.Err }

// PreconditionFailedError is returned when the distribution changed between
// read and write. The update is not retried.
type PreconditionFailedError struct {
	DistributionID string
	ETag           string
	Err            error
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("distribution %s was modified after it was read at ETag %s; re-run to reconcile against the current configuration",
		e.DistributionID, e.ETag)
}

func (e *PreconditionFailedError) Unwrap() error { return e.Err }

// PollTimeoutError is returned when a distribution is still in progress when
// the poll deadline passes. It may still converge after the run ends.
type PollTimeoutError struct {
	DistributionID string
	Timeout        time.Duration
	Status         string
}

func (e *PollTimeoutError) Error() string {
	status := e.Status
	if status == "" {
		status = "without status"
	}
	return fmt.Sprintf("distribution %s still %s after %s; it may finish deploying later",
		e.DistributionID, status, e.Timeout)
}

// UnexpectedStatusError is returned for any status other than InProgress or
// Deployed.
type UnexpectedStatusError struct {
	DistributionID string
	Status         string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("distribution %s reported unexpected status %q", e.DistributionID, e.Status)
}

// InvariantViolation signals an internal inconsistency, such as a behavior
// that passed manifest validation but is missing when applied.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}
