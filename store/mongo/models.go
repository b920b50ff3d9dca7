package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// BSON has no unsigned 64-bit integer; amounts are stored as decimal
// strings. Payment IDs are stored as int64 and converted back bit-for-bit.

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:escrow_accounts"`

	Receiver  string         `grove:"receiver,pk" bson:"_id"`
	Sequence  int64          `grove:"sequence"    bson:"sequence"`
	Buckets   []bucketModel  `grove:"buckets"     bson:"buckets"`
	Payments  []paymentModel `grove:"payments"    bson:"payments"`
	UpdatedAt time.Time      `grove:"updated_at"  bson:"updated_at"`
}

type bucketModel struct {
	ID        string    `bson:"id"`
	State     string    `bson:"state"`
	Total     string    `bson:"total"`
	Payments  []int64   `bson:"payments"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type paymentModel struct {
	ID           int64  `bson:"id"`
	ExternalID   int64  `bson:"external_id"`
	Payer        string `bson:"payer"`
	Amount       string `bson:"amount"`
	RefundAmount string `bson:"refund_amount"`
	State        string `bson:"state"`
	Bucket       string `bson:"bucket_id"`
}

func toAccountModel(st *ledger.AccountState) *accountModel {
	m := &accountModel{
		Receiver:  string(st.Receiver),
		Sequence:  int64(st.Sequence),
		Buckets:   make([]bucketModel, len(st.Buckets)),
		Payments:  make([]paymentModel, len(st.Payments)),
		UpdatedAt: st.UpdatedAt,
	}
	for i, bk := range st.Buckets {
		pids := make([]int64, len(bk.Payments))
		for j, pid := range bk.Payments {
			pids[j] = int64(pid)
		}
		m.Buckets[i] = bucketModel{
			ID:        bk.ID.String(),
			State:     bk.State.String(),
			Total:     bk.Total.String(),
			Payments:  pids,
			CreatedAt: bk.CreatedAt,
			UpdatedAt: bk.UpdatedAt,
		}
	}
	for i, p := range st.Payments {
		m.Payments[i] = paymentModel{
			ID:           int64(p.ID),
			ExternalID:   int64(p.ExternalID),
			Payer:        string(p.Payer),
			Amount:       p.Amount.String(),
			RefundAmount: p.RefundAmount.String(),
			State:        p.State.String(),
			Bucket:       p.Bucket.String(),
		}
	}
	return m
}

func fromAccountModel(m *accountModel) (*ledger.AccountState, error) {
	receiver := types.Address(m.Receiver)
	st := &ledger.AccountState{
		Receiver:  receiver,
		Sequence:  uint64(m.Sequence),
		Buckets:   make([]ledger.Bucket, len(m.Buckets)),
		UpdatedAt: m.UpdatedAt,
	}
	for i, bm := range m.Buckets {
		bid, err := id.ParseBucketID(bm.ID)
		if err != nil {
			return nil, err
		}
		state, err := ledger.ParseState(bm.State)
		if err != nil {
			return nil, err
		}
		total, err := types.ParseAmount(bm.Total)
		if err != nil {
			return nil, err
		}
		pids := make([]uint64, len(bm.Payments))
		for j, pid := range bm.Payments {
			pids[j] = uint64(pid)
		}
		st.Buckets[i] = ledger.Bucket{
			ID:       bid,
			Receiver: receiver,
			State:    state,
			Total:    total,
			Payments: pids,
			Entity:   types.Entity{CreatedAt: bm.CreatedAt, UpdatedAt: bm.UpdatedAt},
		}
	}
	for _, pm := range m.Payments {
		p, err := fromPaymentModel(receiver, &pm)
		if err != nil {
			return nil, fmt.Errorf("decode payment %d of %s: %w", pm.ID, m.Receiver, err)
		}
		st.Payments = append(st.Payments, p)
	}
	return st, nil
}

func fromPaymentModel(receiver types.Address, pm *paymentModel) (ledger.Payment, error) {
	amount, err := types.ParseAmount(pm.Amount)
	if err != nil {
		return ledger.Payment{}, err
	}
	refunded, err := types.ParseAmount(pm.RefundAmount)
	if err != nil {
		return ledger.Payment{}, err
	}
	state, err := ledger.ParseState(pm.State)
	if err != nil {
		return ledger.Payment{}, err
	}
	bid, err := id.ParseBucketID(pm.Bucket)
	if err != nil {
		return ledger.Payment{}, err
	}
	return ledger.Payment{
		ID:           uint64(pm.ID),
		ExternalID:   uint64(pm.ExternalID),
		Receiver:     receiver,
		Payer:        types.Address(pm.Payer),
		Amount:       amount,
		RefundAmount: refunded,
		State:        state,
		Bucket:       bid,
	}, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:escrow_balances"`

	Holder    string    `grove:"holder,pk"  bson:"_id"`
	Amount    string    `grove:"amount"     bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func fromBalanceModel(m *balanceModel) (*payout.Balance, error) {
	amt, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &payout.Balance{Holder: types.Address(m.Holder), Amount: amt, UpdatedAt: m.UpdatedAt}, nil
}

// ==================== Fee settings models ====================

const settingsDoc = "default"

type feeSettingsModel struct {
	grove.BaseModel `grove:"table:escrow_fee_settings"`

	ID        string    `grove:"id,pk"         bson:"_id"`
	FeeBps    int       `grove:"fee_bps"       bson:"fee_bps"`
	Vault     string    `grove:"vault_address" bson:"vault_address"`
	CreatedAt time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"    bson:"updated_at"`
}

func fromFeeSettingsModel(m *feeSettingsModel) *fee.Settings {
	return &fee.Settings{
		Bps:    uint16(m.FeeBps),
		Vault:  types.Address(m.Vault),
		Entity: types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
	}
}

// ==================== Payout models ====================

type payoutModel struct {
	grove.BaseModel `grove:"table:escrow_payouts"`

	ID        string     `grove:"id,pk"      bson:"_id"`
	Holder    string     `grove:"holder"     bson:"holder"`
	Kind      string     `grove:"kind"       bson:"kind"`
	Amount    string     `grove:"amount"     bson:"amount"`
	Status    string     `grove:"status"     bson:"status"`
	PaymentID int64      `grove:"payment_id" bson:"payment_id,omitempty"`
	Reason    string     `grove:"reason"     bson:"reason,omitempty"`
	Rail      string     `grove:"rail"       bson:"rail"`
	PaidAt    *time.Time `grove:"paid_at"    bson:"paid_at,omitempty"`
	CreatedAt time.Time  `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at" bson:"updated_at"`
}

func toPayoutModel(p *payout.Payout) *payoutModel {
	return &payoutModel{
		ID:        p.ID.String(),
		Holder:    string(p.Holder),
		Kind:      string(p.Kind),
		Amount:    p.Amount.String(),
		Status:    string(p.Status),
		PaymentID: int64(p.PaymentID),
		Reason:    p.Reason,
		Rail:      p.Rail,
		PaidAt:    p.PaidAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPayoutModel(m *payoutModel) (*payout.Payout, error) {
	pid, err := id.ParsePayoutID(m.ID)
	if err != nil {
		return nil, err
	}
	amt, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &payout.Payout{
		Entity:    types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:        pid,
		Holder:    types.Address(m.Holder),
		Kind:      payout.Kind(m.Kind),
		Amount:    amt,
		Status:    payout.Status(m.Status),
		PaymentID: uint64(m.PaymentID),
		Reason:    m.Reason,
		Rail:      m.Rail,
		PaidAt:    m.PaidAt,
	}, nil
}

// ==================== Event models ====================

type eventModel struct {
	grove.BaseModel `grove:"table:escrow_events"`

	ID         string            `grove:"id,pk"       bson:"_id"`
	Type       string            `grove:"type"        bson:"type"`
	Receiver   string            `grove:"receiver"    bson:"receiver,omitempty"`
	Payer      string            `grove:"payer"       bson:"payer,omitempty"`
	Actor      string            `grove:"actor"       bson:"actor,omitempty"`
	PaymentID  int64             `grove:"payment_id"  bson:"payment_id,omitempty"`
	Amount     string            `grove:"amount"      bson:"amount"`
	Fee        string            `grove:"fee"         bson:"fee"`
	Metadata   map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	OccurredAt time.Time         `grove:"occurred_at" bson:"occurred_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:         e.ID.String(),
		Type:       string(e.Type),
		Receiver:   string(e.Receiver),
		Payer:      string(e.Payer),
		Actor:      string(e.Actor),
		PaymentID:  int64(e.PaymentID),
		Amount:     e.Amount.String(),
		Fee:        e.Fee.String(),
		Metadata:   e.Metadata,
		OccurredAt: e.OccurredAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eid, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	amt, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	fe, err := types.ParseAmount(m.Fee)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		ID:         eid,
		Type:       event.Type(m.Type),
		Receiver:   types.Address(m.Receiver),
		Payer:      types.Address(m.Payer),
		Actor:      types.Address(m.Actor),
		PaymentID:  uint64(m.PaymentID),
		Amount:     amt,
		Fee:        fe,
		Metadata:   m.Metadata,
		OccurredAt: m.OccurredAt,
	}, nil
}
