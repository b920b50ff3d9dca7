package escrow

import (
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/types"
)

// Re-export common types so callers rarely need the leaf packages.

// Address is re-exported from types package.
type Address = types.Address

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// PaymentInput is re-exported from ledger package.
type PaymentInput = ledger.PaymentInput

// Payment is re-exported from ledger package.
type Payment = ledger.Payment

// Bucket is re-exported from ledger package.
type Bucket = ledger.Bucket

// State is re-exported from ledger package.
type State = ledger.State

// Bucket states
const (
	StatePending   = ledger.StatePending
	StateReview    = ledger.StateReview
	StateReady     = ledger.StateReady
	StateApproved  = ledger.StateApproved
	StateProcessed = ledger.StateProcessed
)

// ZeroAddress means "no address", e.g. an unset vault.
const ZeroAddress = types.ZeroAddress

// Re-export helpers
var (
	NewEntity  = types.NewEntity
	ParseUnits = types.ParseUnits
	Sum        = types.Sum
)
