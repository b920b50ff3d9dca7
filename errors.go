package escrow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("escrow: not found")
	ErrAlreadyExists = errors.New("escrow: already exists")
	ErrInvalidInput  = errors.New("escrow: invalid input")

	// Validation errors
	ErrZeroAddress         = types.ErrZeroAddress
	ErrZeroValue           = types.ErrZeroValue
	ErrInsufficientPayment = errors.New("escrow: supplied funds below payment amount")
	ErrRefundExceedsAmount = ledger.ErrRefundExceedsAmount
	ErrInvalidBps          = fee.ErrInvalidBps
	ErrOverflow            = ledger.ErrOverflow

	// State-conflict errors
	ErrInvalidState      = ledger.ErrInvalidState
	ErrNoPendingBucket   = ledger.ErrNoPendingBucket
	ErrEmptyBucket       = ledger.ErrEmptyBucket
	ErrReadyBucketExists = ledger.ErrReadyBucketExists
	ErrNoReadyBucket     = ledger.ErrNoReadyBucket
	ErrNoApprovedBucket  = ledger.ErrNoApprovedBucket
	ErrPaymentLocked     = ledger.ErrPaymentLocked
	ErrNothingToPayOut   = ledger.ErrNothingToPayOut
	ErrNoVault           = fmt.Errorf("%w: no vault address configured", ledger.ErrInvalidState)

	// Authorization errors
	ErrUnauthorized      = access.ErrUnauthorized
	ErrAdminSelfRevoke   = access.ErrAdminSelfRevoke
	ErrRenounceForOthers = access.ErrRenounceForOthers

	// Ownership errors
	ErrReceiverMismatch = ledger.ErrReceiverMismatch
	ErrPayerMismatch    = ledger.ErrPayerMismatch

	// Lookup errors
	ErrPaymentNotFound     = ledger.ErrPaymentNotFound
	ErrAccountNotFound     = errors.New("escrow: account not found")
	ErrPayoutNotFound      = errors.New("escrow: payout not found")
	ErrFeeSettingsNotFound = errors.New("escrow: fee settings not found")

	// Transport errors
	ErrInsufficientBalance   = transport.ErrInsufficientBalance
	ErrInsufficientAllowance = transport.ErrInsufficientAllowance

	// Store errors
	ErrStoreClosed     = errors.New("escrow: store is closed")
	ErrMigrationFailed = errors.New("escrow: migration failed")

	// Gateway errors
	ErrNotStarted         = errors.New("escrow: gateway not started")
	ErrStopped            = errors.New("escrow: gateway stopped")
	ErrInvariantViolation = ledger.ErrInvariantViolation
	ErrCustodyMismatch    = errors.New("escrow: custody balance does not cover liabilities")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("escrow: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "escrow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("escrow: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ReceiverError is the failure of one receiver inside a batch.
type ReceiverError struct {
	Receiver types.Address
	Err      error
}

func (e *ReceiverError) Error() string {
	return fmt.Sprintf("%s: %v", e.Receiver, e.Err)
}

func (e *ReceiverError) Unwrap() error { return e.Err }

// BatchError reports the receivers a batch operation could not complete.
// Receivers not listed succeeded and stay committed.
type BatchError struct {
	MultiError
	Op string
}

func (e *BatchError) add(receiver types.Address, err error) {
	e.Add(&ReceiverError{Receiver: receiver, Err: err})
}

// Failed returns the receivers that failed, sorted.
func (e *BatchError) Failed() []types.Address {
	out := make([]types.Address, 0, len(e.Errors))
	for _, err := range e.Errors {
		var re *ReceiverError
		if errors.As(err, &re) {
			out = append(out, re.Receiver)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// For returns the error recorded for receiver, or nil.
func (e *BatchError) For(receiver types.Address) error {
	for _, err := range e.Errors {
		var re *ReceiverError
		if errors.As(err, &re) && re.Receiver == receiver {
			return re.Err
		}
	}
	return nil
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("escrow: %s failed for %d receiver(s): %s", e.Op, len(e.Errors), strings.Join(parts, "; "))
}

// IsValidation returns true for malformed input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrZeroAddress) ||
		errors.Is(err, ErrZeroValue) ||
		errors.Is(err, ErrInsufficientPayment) ||
		errors.Is(err, ErrRefundExceedsAmount) ||
		errors.Is(err, ErrInvalidBps) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrInvalidInput)
}

// IsStateConflict returns true when the operation is not valid in the
// current payment or bucket state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsUnauthorized returns true when the caller lacks the required role.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAdminSelfRevoke) ||
		errors.Is(err, ErrRenounceForOthers)
}

// IsOwnershipMismatch returns true when a payment is addressed to a
// different receiver or payer than the one it was recorded under.
func IsOwnershipMismatch(err error) bool {
	return errors.Is(err, ErrReceiverMismatch) ||
		errors.Is(err, ErrPayerMismatch)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPayoutNotFound) ||
		errors.Is(err, ErrFeeSettingsNotFound)
}

// IsTransferFailure returns true when the currency transport refused to
// move funds.
func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance)
}
