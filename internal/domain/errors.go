package domain

import "fmt"

// Typed errors for the credit ledger. Handlers map these to HTTP status
// codes in one place; services return them and never write to the response.

// ErrNotFound indicates a missing resource.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a request that failed input validation.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// ErrInsufficientCredits is returned when a consumption would overdraw
// the combined (current + bonus) balance.
type ErrInsufficientCredits struct {
	Available int64
	Required  int64
}

func (e *ErrInsufficientCredits) Error() string {
	return fmt.Sprintf("insufficient credits: available %d, required %d", e.Available, e.Required)
}

// ErrInvalidPlan indicates a plan identifier outside the catalog.
type ErrInvalidPlan struct {
	PlanID string
}

func (e *ErrInvalidPlan) Error() string {
	return fmt.Sprintf("invalid plan: %q", e.PlanID)
}

// ErrInvalidState indicates a subscription operation that is not legal
// from the subscription's current status.
type ErrInvalidState struct {
	Operation string
	Status    string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s subscription in status %q", e.Operation, e.Status)
}

// ErrTransient wraps a retryable failure from a remote dependency.
// Callers may retry the whole operation; the ledger itself does not.
type ErrTransient struct {
	Operation string
	Err       error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Operation, e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker rejected the call.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Service)
}

// ErrExternalService wraps a non-retryable upstream failure.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service %s failed: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error { return e.Err }

// ErrDuplicate indicates a uniqueness violation (e.g. idempotency key reuse
// with a different payload).
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate entry: %s", e.Key)
}

// ErrUnauthorized indicates a caller acting on a user other than the one
// in their token.
type ErrUnauthorized struct {
	Reason string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}
