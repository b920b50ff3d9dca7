package event

import (
	"time"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

type Type string

const (
	TypePaymentPlaced   Type = "payment.placed"
	TypePaymentReviewed Type = "payment.reviewed"
	TypePaymentRefunded Type = "payment.refunded"
	TypeBucketFrozen    Type = "bucket.frozen"
	TypeBucketApproved  Type = "bucket.approved"
	TypeBucketProcessed Type = "bucket.processed"
	TypePayoutReleased  Type = "payout.released"
	TypePayoutFailed    Type = "payout.failed"
	TypeFeeBpsChanged   Type = "fee.bps_changed"
	TypeVaultChanged    Type = "fee.vault_changed"
	TypeRoleGranted     Type = "role.granted"
	TypeRoleRevoked     Type = "role.revoked"
	TypeAccessDenied    Type = "access.denied"
)

// Event is one entry of the gateway's journal. Amount and Fee are zero
// when the event carries no value.
type Event struct {
	ID         id.EventID        `json:"id"`
	Type       Type              `json:"type"`
	Receiver   types.Address     `json:"receiver,omitempty"`
	Payer      types.Address     `json:"payer,omitempty"`
	Actor      types.Address     `json:"actor,omitempty"`
	PaymentID  uint64            `json:"payment_id,omitempty"`
	Amount     types.Amount      `json:"amount"`
	Fee        types.Amount      `json:"fee"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New stamps an event of type t with a fresh ID and the current time.
func New(t Type) *Event {
	return &Event{ID: id.NewEventID(), Type: t, OccurredAt: time.Now().UTC()}
}

// PaymentPlaced is emitted for every accepted placement.
func PaymentPlaced(payer, receiver types.Address, amount types.Amount, paymentID uint64) *Event {
	e := New(TypePaymentPlaced)
	e.Payer = payer
	e.Receiver = receiver
	e.Amount = amount
	e.PaymentID = paymentID
	return e
}

// With sets a metadata key and returns e.
func (e *Event) With(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Match reports whether e passes the filter in opts. Pagination fields are
// ignored.
func (e *Event) Match(opts ListOpts) bool {
	if opts.Type != "" && e.Type != opts.Type {
		return false
	}
	if opts.Receiver != "" && e.Receiver != opts.Receiver {
		return false
	}
	if opts.PaymentID != 0 && e.PaymentID != opts.PaymentID {
		return false
	}
	if !opts.Start.IsZero() && e.OccurredAt.Before(opts.Start) {
		return false
	}
	if !opts.End.IsZero() && !e.OccurredAt.Before(opts.End) {
		return false
	}
	return true
}
