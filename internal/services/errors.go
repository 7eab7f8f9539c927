package services

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTransactionReference means confirm was attempted with no
	// reference supplied by the user or by staff.
	ErrMissingTransactionReference = errors.New("no transaction reference on record")
	// ErrAlreadyConfirmed means a cancel was attempted on a confirmed case.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
	// ErrAlreadyCancelled means a confirm was attempted on a cancelled case.
	ErrAlreadyCancelled = errors.New("payment already cancelled")
	// ErrReasonRequired means cancel was called without a reason.
	ErrReasonRequired = errors.New("cancellation reason is required")
	// ErrInvalidTransition means the status graph forbids the requested move.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotConfirmed means fulfillment was requested for a case that is
	// not in confirmed status.
	ErrNotConfirmed = errors.New("payment is not confirmed")
)

// Saga step names recorded in SagaStepError.
const (
	StepInvoice      = "invoice"
	StepEntitlement  = "entitlement"
	StepNotification = "notification"
)

// SagaStepError reports a fulfillment step that failed after the confirmed
// transition was already durable. It never reverts the confirmation; the
// step stays unmarked and is re-run by ResumeFulfillment.
type SagaStepError struct {
	Step  string
	Cause error
}

func (e *SagaStepError) Error() string {
	return fmt.Sprintf("fulfillment step %s failed: %v", e.Step, e.Cause)
}

func (e *SagaStepError) Unwrap() error {
	return e.Cause
}
