package secureops

import (
	"errors"
	"fmt"
)

// ErrDependencyUnavailable is surfaced when the circuit for the descriptor's
// target is open and the operation was never invoked.
var ErrDependencyUnavailable = errors.New("dependency unavailable")

// ErrAuditWriteFailed marks audit sink failures in logs. It is never returned
// to callers; audit is observability, not transactional.
var ErrAuditWriteFailed = errors.New("audit write failed")

// ValidationError reports caller misuse of the gateway: a bad context or
// descriptor. It fails fast before any execution or audit write and is never
// retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Message)
}

// OperationError wraps a failure of the wrapped operation itself, after the
// resilience policy has been exhausted.
type OperationError struct {
	Operation string
	Target    string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s against %s failed: %v", e.Operation, e.Target, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a gateway validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
