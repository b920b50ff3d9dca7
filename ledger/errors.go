package ledger

import (
	"errors"
	"fmt"

	"github.com/xraph/escrow/types"
)

var (
	// Validation
	ErrZeroAddress         = types.ErrZeroAddress
	ErrZeroValue           = types.ErrZeroValue
	ErrRefundExceedsAmount = errors.New("escrow: refund exceeds live payment amount")
	ErrOverflow            = types.ErrAmountOverflow

	// Lookup
	ErrPaymentNotFound = errors.New("escrow: payment not found")

	// Ownership
	ErrReceiverMismatch = errors.New("escrow: receiver mismatch")
	ErrPayerMismatch    = errors.New("escrow: payer mismatch")

	// State conflicts. Each specific error matches ErrInvalidState.
	ErrInvalidState       = errors.New("escrow: invalid action for current state")
	ErrNoPendingBucket    = fmt.Errorf("%w: no pending bucket", ErrInvalidState)
	ErrEmptyBucket        = fmt.Errorf("%w: pending bucket is empty", ErrInvalidState)
	ErrReadyBucketExists  = fmt.Errorf("%w: a ready bucket is already awaiting approval", ErrInvalidState)
	ErrNoReadyBucket      = fmt.Errorf("%w: no ready bucket", ErrInvalidState)
	ErrNoApprovedBucket   = fmt.Errorf("%w: no approved bucket", ErrInvalidState)
	ErrPaymentLocked      = fmt.Errorf("%w: payment is approved or processed", ErrInvalidState)
	ErrNothingToPayOut    = fmt.Errorf("%w: nothing to pay out", ErrInvalidState)
	ErrInvariantViolation = errors.New("escrow: ledger invariant violated")
)
