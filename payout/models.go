package payout

import (
	"time"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// Kind says which custody release produced a payout.
type Kind string

const (
	KindReceiver Kind = "receiver"
	KindVault    Kind = "vault"
	KindRefund   Kind = "refund"
)

type Status string

const (
	StatusPaid   Status = "paid"
	StatusFailed Status = "failed"
)

// Payout is the receipt of one transfer out of custody. Failed transfers
// are recorded too; their amount was restored to the ledger.
type Payout struct {
	types.Entity
	ID        id.PayoutID   `json:"id"`
	Holder    types.Address `json:"holder"`
	Kind      Kind          `json:"kind"`
	Amount    types.Amount  `json:"amount"`
	Status    Status        `json:"status"`
	PaymentID uint64        `json:"payment_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Rail      string        `json:"rail"`
	PaidAt    *time.Time    `json:"paid_at,omitempty"`
}

// New creates a paid receipt.
func New(holder types.Address, kind Kind, amount types.Amount, rail string) *Payout {
	now := time.Now().UTC()
	return &Payout{
		Entity: types.NewEntity(),
		ID:     id.NewPayoutID(),
		Holder: holder,
		Kind:   kind,
		Amount: amount,
		Status: StatusPaid,
		Rail:   rail,
		PaidAt: &now,
	}
}

// Fail marks the receipt failed with the transfer error.
func (p *Payout) Fail(err error) {
	p.Status = StatusFailed
	p.PaidAt = nil
	if err != nil {
		p.Reason = err.Error()
	}
	p.Touch()
}

// Balance is a persisted payable balance. The zero holder is the pool of
// fees collected while no vault was configured.
type Balance struct {
	Holder    types.Address `json:"holder"`
	Amount    types.Amount  `json:"amount"`
	UpdatedAt time.Time     `json:"updated_at"`
}
