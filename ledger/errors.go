/*
errors.go - Error taxonomy for the ledger

PURPOSE:
  All error kinds in one place so each layer can classify failures the same
  way. The HTTP layer maps each kind to a distinct status so a caller can
  tell "fix your input" from "try again" from "this no longer exists".

ERROR CATEGORIES:
  ValidationError        Bad input shape or values. Raised before any unit
                         of work opens; never reaches storage.
  NotFoundError          Referenced transaction or item is absent.
  ConflictError          Uniqueness violation (custom transaction id, item code).
  IntegrityError         Foreign-key violation the pre-check did not catch,
                         e.g. an item deleted between validation and commit.
  TransientStorageError  Timeout or lost connection. Retry the whole unit of
                         work from scratch; it is never resumed.

USAGE:
  Every structured error unwraps to its sentinel:

    if errors.Is(err, ledger.ErrConflict) { ... }

    var verr *ledger.ValidationError
    if errors.As(err, &verr) && verr.Code == ledger.CodeItemNotFound { ... }

SEE ALSO:
  - writer.go: Raises and propagates these errors
  - api/errors.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrIntegrity        = errors.New("integrity violation")
	ErrTransientStorage = errors.New("transient storage failure")

	ErrItemNotFound        = errors.New("item not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// =============================================================================
// VALIDATION
// =============================================================================

// Validation codes.
const (
	CodeItemNotFound    = "item_not_found"
	CodeInvalidQuantity = "invalid_quantity"
	CodeInvalidRate     = "invalid_rate"
	CodeMissingField    = "missing_field"
	CodeInvalidKind     = "invalid_kind"
	CodeNoLines         = "no_lines"
	CodeInvalidDate     = "invalid_date"
)

// ValidationError describes why a proposed transaction was rejected.
// Line is the zero-based line index, or -1 for header fields.
type ValidationError struct {
	Code    string
	Field   string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Code, e.Line+1, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Code == CodeItemNotFound {
		return []error{ErrValidation, ErrItemNotFound}
	}
	return []error{ErrValidation}
}

func headerError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Line: -1, Message: message}
}

// =============================================================================
// NOT FOUND / CONFLICT
// =============================================================================

type NotFoundError struct {
	Resource string // "transaction" or "item"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() []error {
	switch e.Resource {
	case "item":
		return []error{ErrNotFound, ErrItemNotFound}
	case "transaction":
		return []error{ErrNotFound, ErrTransactionNotFound}
	}
	return []error{ErrNotFound}
}

type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// INTEGRITY / TRANSIENT - Carry the underlying cause
// =============================================================================

type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity violation: %s: %v", e.Reason, e.Err)
	}
	return "integrity violation: " + e.Reason
}

func (e *IntegrityError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIntegrity}
	}
	return []error{ErrIntegrity, e.Err}
}

type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransientStorage}
	}
	return []error{ErrTransientStorage, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the caller must fix the input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRetryable returns true if repeating the whole operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}

// IsNotFound returns true if the referenced record no longer exists.
// Integrity failures are excluded even when their cause is a missing item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIntegrity)
}

// IsConflict returns true for uniqueness and integrity collisions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrIntegrity)
}
