package ledger

import (
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// PaymentInput is what a payer submits for one receiver.
type PaymentInput struct {
	// ExternalID is the caller's reference for the payment (order number).
	// Repeat placements with the same reference merge while the payment is
	// still mutable.
	ExternalID uint64        `json:"external_id"`
	Payer      types.Address `json:"payer"`
	Amount     types.Amount  `json:"amount"`
}

// Payment is one line item owed to a receiver.
type Payment struct {
	ID           uint64        `json:"id"`
	ExternalID   uint64        `json:"external_id"`
	Receiver     types.Address `json:"receiver"`
	Payer        types.Address `json:"payer"`
	Amount       types.Amount  `json:"amount"`
	RefundAmount types.Amount  `json:"refund_amount"`
	State        State         `json:"state"`
	Bucket       id.BucketID   `json:"bucket_id"`
}

// Bucket groups a receiver's payments that move through the pipeline
// together.
type Bucket struct {
	ID       id.BucketID   `json:"id"`
	Receiver types.Address `json:"receiver"`
	State    State         `json:"state"`
	Total    types.Amount  `json:"total"`
	Payments []uint64      `json:"payments"`
	types.Entity
}

func (b *Bucket) clone() Bucket {
	c := *b
	c.Payments = append([]uint64(nil), b.Payments...)
	return c
}

func (b *Bucket) removePayment(pid uint64) {
	for i, v := range b.Payments {
		if v == pid {
			b.Payments = append(b.Payments[:i], b.Payments[i+1:]...)
			return
		}
	}
}

// Placement is the outcome of AddPayment.
type Placement struct {
	Payment Payment
	// Merged is true when the amount was added to an existing entry.
	Merged bool
	// Added is the amount credited by this placement.
	Added types.Amount
}

// Review is the outcome of toggling a payment's review flag.
type Review struct {
	Payment Payment
	From    State
	To      State
}

// BucketSettlement is the fee split of one processed bucket.
type BucketSettlement struct {
	BucketID id.BucketID  `json:"bucket_id"`
	Total    types.Amount `json:"total"`
	Net      types.Amount `json:"net"`
	Fee      types.Amount `json:"fee"`
}

// Settlement is the outcome of processing a receiver's approved buckets.
type Settlement struct {
	Receiver types.Address      `json:"receiver"`
	Vault    types.Address      `json:"vault"`
	FeeBps   uint16             `json:"fee_bps"`
	Buckets  []BucketSettlement `json:"buckets"`
	Total    types.Amount       `json:"total"`
	Net      types.Amount       `json:"net"`
	Fee      types.Amount       `json:"fee"`
}

// Refund is the outcome of a refund; it carries what is needed to undo it
// if the transfer back to the payer fails.
type Refund struct {
	Before  Payment
	After   Payment
	Amount  types.Amount
	Cleared bool

	bucketIndex int
	slot        int
	external    bool
}

// Payer returns who receives the refunded funds.
func (r *Refund) Payer() types.Address { return r.Before.Payer }
