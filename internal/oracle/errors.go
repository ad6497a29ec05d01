package oracle

import (
	"errors"
	"fmt"

	"github.com/oracular/verdict/internal/attest"
)

// RunError represents a structural failure that halts a run.
//
// Failures local to one request's evaluation (decision function errors,
// missing attestations) are absorbed and logged; RunError is reserved for
// the read/write paths the run cannot proceed without. The partial
// ListenResult accumulated before the failure is always returned with it.
type RunError struct {
	// Code identifies the failure category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Oracle identifies the run's oracle address.
	Oracle attest.Address

	// Fulfillment identifies the request being processed, when applicable.
	Fulfillment attest.UID

	// Err is the underlying cause.
	Err error
}

// RunErrorCode categorizes run failures.
type RunErrorCode string

const (
	// ErrCodeSubmitFailed indicates decision submission exhausted retries.
	ErrCodeSubmitFailed RunErrorCode = "SUBMIT_FAILED"

	// ErrCodeIndexFailed indicates the historical request query failed.
	ErrCodeIndexFailed RunErrorCode = "INDEX_FAILED"

	// ErrCodeSubscribeFailed indicates the live subscription could not open.
	ErrCodeSubscribeFailed RunErrorCode = "SUBSCRIBE_FAILED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if !e.Fulfillment.IsZero() {
		return fmt.Sprintf("%s: %s (oracle=%s, fulfillment=%s)", e.Code, e.Message, e.Oracle, e.Fulfillment)
	}
	return fmt.Sprintf("%s: %s (oracle=%s)", e.Code, e.Message, e.Oracle)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsSubmitFailure reports whether err is a decision write failure.
func IsSubmitFailure(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Code == ErrCodeSubmitFailed
}

func newRunError(code RunErrorCode, msg string, oracle attest.Address, fulfillment attest.UID, err error) *RunError {
	return &RunError{
		Code:        code,
		Message:     msg,
		Oracle:      oracle,
		Fulfillment: fulfillment,
		Err:         err,
	}
}
