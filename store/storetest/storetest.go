// Package storetest is a behavioural suite shared by the Store backends.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

const (
	seller types.Address = "0xseller"
	buyer  types.Address = "0xbuyer"
	vault  types.Address = "0xvault"
)

// Run exercises s. Each subtest gets a fresh store from newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("FeeSettings", func(t *testing.T) { testFeeSettings(t, newStore(t)) })
	t.Run("Payouts", func(t *testing.T) { testPayouts(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
}

func sampleAccount() *ledger.AccountState {
	bkt := id.NewBucketID()
	return &ledger.AccountState{
		Receiver: seller,
		Sequence: 2,
		Buckets: []ledger.Bucket{{
			ID:       bkt,
			Receiver: seller,
			State:    ledger.StatePending,
			Total:    3000,
			Payments: []uint64{1, 2},
			Entity:   types.NewEntity(),
		}},
		Payments: []ledger.Payment{
			{ID: 1, ExternalID: 10, Receiver: seller, Payer: buyer, Amount: 1000, State: ledger.StatePending, Bucket: bkt},
			{ID: 2, ExternalID: 11, Receiver: seller, Payer: buyer, Amount: 2000, RefundAmount: 5, State: ledger.StatePending, Bucket: bkt},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, seller)
	require.ErrorIs(t, err, escrow.ErrAccountNotFound)

	st := sampleAccount()
	require.NoError(t, s.SaveAccount(ctx, st))

	got, err := s.GetAccount(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, st.Receiver, got.Receiver)
	require.Equal(t, st.Sequence, got.Sequence)
	require.Len(t, got.Buckets, 1)
	require.Equal(t, st.Buckets[0].ID, got.Buckets[0].ID)
	require.Equal(t, st.Buckets[0].Total, got.Buckets[0].Total)
	require.Equal(t, st.Buckets[0].Payments, got.Buckets[0].Payments)
	require.Equal(t, ledger.StatePending, got.Buckets[0].State)
	require.Len(t, got.Payments, 2)
	require.Equal(t, st.Payments[1].RefundAmount, got.Payments[1].RefundAmount)

	// save replaces
	st.Buckets[0].State = ledger.StateReady
	st.Sequence = 3
	require.NoError(t, s.SaveAccount(ctx, st))
	got, err = s.GetAccount(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, ledger.StateReady, got.Buckets[0].State)
	require.Equal(t, uint64(3), got.Sequence)

	other := sampleAccount()
	other.Receiver = "0xother"
	require.NoError(t, s.SaveAccount(ctx, other))
	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveBalances(ctx, []*payout.Balance{
		{Holder: seller, Amount: 5940},
		{Holder: vault, Amount: 60},
		{Holder: types.ZeroAddress, Amount: 7},
	}))
	list, err := s.ListBalances(ctx)
	require.NoError(t, err)
	require.Equal(t, map[types.Address]types.Amount{seller: 5940, vault: 60, types.ZeroAddress: 7}, byHolder(list))

	require.NoError(t, s.SaveBalances(ctx, []*payout.Balance{
		{Holder: seller, Amount: 0},
		{Holder: vault, Amount: 67},
	}))
	list, err = s.ListBalances(ctx)
	require.NoError(t, err)
	require.Equal(t, map[types.Address]types.Amount{vault: 67, types.ZeroAddress: 7}, byHolder(list))
}

func byHolder(list []*payout.Balance) map[types.Address]types.Amount {
	out := make(map[types.Address]types.Amount, len(list))
	for _, b := range list {
		out[b.Holder] = b.Amount
	}
	return out
}

func testFeeSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetFeeSettings(ctx)
	require.ErrorIs(t, err, escrow.ErrFeeSettingsNotFound)

	require.NoError(t, s.SaveFeeSettings(ctx, &fee.Settings{Bps: 250, Vault: vault, Entity: types.NewEntity()}))
	require.NoError(t, s.SaveFeeSettings(ctx, &fee.Settings{Bps: 300, Vault: vault, Entity: types.NewEntity()}))

	got, err := s.GetFeeSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, uint16(300), got.Bps)
	require.Equal(t, vault, got.Vault)
}

func testPayouts(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetPayout(ctx, id.NewPayoutID())
	require.ErrorIs(t, err, escrow.ErrPayoutNotFound)

	paid := payout.New(seller, payout.KindReceiver, 5940, "native")
	require.NoError(t, s.CreatePayout(ctx, paid))

	refund := payout.New(buyer, payout.KindRefund, 250, "native")
	refund.PaymentID = 2
	refund.CreatedAt = paid.CreatedAt.Add(time.Second)
	require.NoError(t, s.CreatePayout(ctx, refund))

	failed := payout.New(vault, payout.KindVault, 60, "native")
	failed.CreatedAt = paid.CreatedAt.Add(2 * time.Second)
	failed.Fail(escrow.ErrInsufficientBalance)
	require.NoError(t, s.CreatePayout(ctx, failed))

	got, err := s.GetPayout(ctx, refund.ID)
	require.NoError(t, err)
	require.Equal(t, refund.ID, got.ID)
	require.Equal(t, payout.KindRefund, got.Kind)
	require.Equal(t, types.Amount(250), got.Amount)
	require.Equal(t, uint64(2), got.PaymentID)
	require.NotNil(t, got.PaidAt)

	all, err := s.ListPayouts(ctx, payout.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, paid.ID, all[0].ID)

	onlyFailed, err := s.ListPayouts(ctx, payout.ListOpts{Status: payout.StatusFailed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	require.Equal(t, failed.Reason, onlyFailed[0].Reason)
	require.Nil(t, onlyFailed[0].PaidAt)

	bySeller, err := s.ListPayouts(ctx, payout.ListOpts{Holder: string(seller)})
	require.NoError(t, err)
	require.Len(t, bySeller, 1)

	page, err := s.ListPayouts(ctx, payout.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, refund.ID, page[0].ID)
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	placed := event.PaymentPlaced(buyer, seller, 1000, 1)
	placed.OccurredAt = base
	frozen := event.New(event.TypeBucketFrozen)
	frozen.Receiver = seller
	frozen.Amount = 1000
	frozen.OccurredAt = base.Add(time.Second)
	other := event.PaymentPlaced(buyer, "0xother", 5, 2)
	other.OccurredAt = base.Add(2 * time.Second)
	other.With("rail", "native")

	require.NoError(t, s.AppendEvents(ctx, []*event.Event{placed, frozen}))
	require.NoError(t, s.AppendEvents(ctx, []*event.Event{other}))

	all, err := s.ListEvents(ctx, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, placed.ID, all[0].ID)
	require.Equal(t, other.ID, all[2].ID)
	require.Equal(t, "native", all[2].Metadata["rail"])

	forSeller, err := s.ListEvents(ctx, event.ListOpts{Receiver: string(seller)})
	require.NoError(t, err)
	require.Len(t, forSeller, 2)

	placements, err := s.ListEvents(ctx, event.ListOpts{Type: event.TypePaymentPlaced})
	require.NoError(t, err)
	require.Len(t, placements, 2)

	window, err := s.ListEvents(ctx, event.ListOpts{Start: base.Add(time.Second), End: base.Add(2 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	require.Equal(t, frozen.ID, window[0].ID)

	page, err := s.ListEvents(ctx, event.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
}
