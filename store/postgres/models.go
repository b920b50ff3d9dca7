package postgres

import (
	"encoding/json"
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

// Amounts are NUMERIC(20,0) so the full uint64 range survives; they travel
// as decimal strings.

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:escrow_accounts"`

	Receiver  string          `grove:"receiver,pk"`
	Sequence  int64           `grove:"sequence"`
	Buckets   json.RawMessage `grove:"buckets,type:jsonb"`
	Payments  json.RawMessage `grove:"payments,type:jsonb"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toAccountModel(st *ledger.AccountState) (*accountModel, error) {
	buckets, err := json.Marshal(st.Buckets)
	if err != nil {
		return nil, err
	}
	payments, err := json.Marshal(st.Payments)
	if err != nil {
		return nil, err
	}
	return &accountModel{
		Receiver:  string(st.Receiver),
		Sequence:  int64(st.Sequence),
		Buckets:   buckets,
		Payments:  payments,
		UpdatedAt: st.UpdatedAt,
	}, nil
}

func fromAccountModel(m *accountModel) (*ledger.AccountState, error) {
	st := &ledger.AccountState{
		Receiver:  types.Address(m.Receiver),
		Sequence:  uint64(m.Sequence),
		UpdatedAt: m.UpdatedAt,
	}
	if err := json.Unmarshal(m.Buckets, &st.Buckets); err != nil {
		return nil, fmt.Errorf("decode buckets of %s: %w", m.Receiver, err)
	}
	if len(m.Payments) > 0 && string(m.Payments) != "null" {
		if err := json.Unmarshal(m.Payments, &st.Payments); err != nil {
			return nil, fmt.Errorf("decode payments of %s: %w", m.Receiver, err)
		}
	}
	return st, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:escrow_balances"`

	Holder    string    `grove:"holder,pk"`
	Amount    string    `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toBalanceModel(b *payout.Balance) *balanceModel {
	updated := b.UpdatedAt
	if updated.IsZero() {
		updated = now()
	}
	return &balanceModel{Holder: string(b.Holder), Amount: b.Amount.String(), UpdatedAt: updated}
}

func fromBalanceModel(m *balanceModel) (*payout.Balance, error) {
	amt, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &payout.Balance{Holder: types.Address(m.Holder), Amount: amt, UpdatedAt: m.UpdatedAt}, nil
}

// ==================== Fee settings models ====================

const settingsRow = "default"

type feeSettingsModel struct {
	grove.BaseModel `grove:"table:escrow_fee_settings"`

	ID        string    `grove:"id,pk"`
	FeeBps    int       `grove:"fee_bps"`
	Vault     string    `grove:"vault_address"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toFeeSettingsModel(s *fee.Settings) *feeSettingsModel {
	return &feeSettingsModel{
		ID:        settingsRow,
		FeeBps:    int(s.Bps),
		Vault:     string(s.Vault),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
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

	ID        string     `grove:"id,pk"`
	Holder    string     `grove:"holder"`
	Kind      string     `grove:"kind"`
	Amount    string     `grove:"amount"`
	Status    string     `grove:"status"`
	PaymentID int64      `grove:"payment_id"`
	Reason    string     `grove:"reason"`
	Rail      string     `grove:"rail"`
	PaidAt    *time.Time `grove:"paid_at"`
	CreatedAt time.Time  `grove:"created_at"`
	UpdatedAt time.Time  `grove:"updated_at"`
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

	ID         string            `grove:"id,pk"`
	Type       string            `grove:"type"`
	Receiver   string            `grove:"receiver"`
	Payer      string            `grove:"payer"`
	Actor      string            `grove:"actor"`
	PaymentID  int64             `grove:"payment_id"`
	Amount     string            `grove:"amount"`
	Fee        string            `grove:"fee"`
	Metadata   map[string]string `grove:"metadata,type:jsonb"`
	OccurredAt time.Time         `grove:"occurred_at"`
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
