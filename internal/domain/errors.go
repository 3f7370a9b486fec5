package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the service.
// All of them are non-fatal: they signal a typed reason to the caller and
// guarantee that no state was changed.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInsufficientFunds indicates the balance would go negative.
type ErrInsufficientFunds struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: available=%s required=%s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// ErrLimitExceeded indicates a withdrawal would exceed the remaining
// daily allowance.
type ErrLimitExceeded struct {
	LimitType string
	Limit     decimal.Decimal
	Current   decimal.Decimal
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("limit exceeded [%s]: limit=%s current=%s",
		e.LimitType, e.Limit.StringFixed(2), e.Current.StringFixed(2))
}

// ErrDuplicate indicates a duplicate operation (idempotency check) or a
// uniqueness conflict such as an already-taken account number.
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate operation: %s", e.Key)
}

// ErrCircuitOpen indicates the store circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrStore indicates the underlying persistence failed. It is surfaced as
// an opaque failure; the atomic commit unit guarantees no partial write.
type ErrStore struct {
	Op  string
	Err error
}

func (e *ErrStore) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Op, e.Err)
}

func (e *ErrStore) Unwrap() error {
	return e.Err
}
