package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates the user row backing the sequence counter is
	// missing. Fatal for the request: resubmission cannot succeed.
	ErrUserNotFound = errors.New("sync: user not found")
	// ErrTooManyOperations indicates a batch exceeded MaxOperationsPerBatch.
	ErrTooManyOperations = errors.New("sync: too many operations")
	// ErrReferentialIntegrity indicates a review log referenced a card that
	// does not exist and is not created earlier in the same batch.
	ErrReferentialIntegrity = errors.New("sync: referential integrity violation")
	// ErrApplyFailed indicates the batch write did not complete. Sequence
	// numbers reserved for the batch are permanently consumed; resubmitting
	// the same logical operations is safe because every merge policy is
	// idempotent or convergent.
	ErrApplyFailed = errors.New("sync: apply failed")
)

// SchemaError reports a malformed operation payload by batch index.
type SchemaError struct {
	Index  int
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("sync: operation %d: %s", e.Index, e.Reason)
}

// ServiceError wraps a failure with a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
