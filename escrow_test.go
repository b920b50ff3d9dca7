package escrow_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/store"
	dsstore "github.com/xraph/escrow/store/datastore"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

const (
	admin    types.Address = "0xadmin"
	approver types.Address = "0xapprover"
	refunder types.Address = "0xrefunder"
	dao      types.Address = "0xdao"
	system   types.Address = "0xsystem"
	vault    types.Address = "0xvault"
	custody  types.Address = "0xescrow"
	buyer    types.Address = "0xbuyer"
	buyer2   types.Address = "0xbuyer2"
	seller   types.Address = "0xseller"
	seller2  types.Address = "0xseller2"
	mallory  types.Address = "0xmallory"

	funding types.Amount = 1_000_000_000
)

// rail wraps a transport so tests can make payouts fail.
type rail struct {
	transport.Transport
	failCredit atomic.Bool
}

func (r *rail) Credit(ctx context.Context, to types.Address, amount types.Amount) error {
	if r.failCredit.Load() {
		return errors.New("rail unavailable")
	}
	return r.Transport.Credit(ctx, to, amount)
}

// railCase builds a funded currency rail for buyer and buyer2.
type railCase struct {
	name  string
	build func(t *testing.T) transport.Transport
}

func nativeRail(t *testing.T) transport.Transport {
	t.Helper()
	w := transport.NewNativeWallet(custody)
	require.NoError(t, w.Fund(buyer, funding))
	require.NoError(t, w.Fund(buyer2, funding))
	return w
}

func tokenRail(t *testing.T) transport.Transport {
	t.Helper()
	w := transport.NewTokenWallet("USDC", custody)
	for _, payer := range []types.Address{buyer, buyer2} {
		require.NoError(t, w.Mint(payer, funding))
		w.Approve(payer, funding)
	}
	return w
}

var rails = []railCase{
	{"native", nativeRail},
	{"token", tokenRail},
}

type fixture struct {
	g      *escrow.Gateway
	roles  *access.Controller
	rail   *rail
	store  store.Store
	ctx    context.Context
	cancel context.CancelFunc
}

func newRoles(t *testing.T) *access.Controller {
	t.Helper()
	roles, err := access.New(admin)
	require.NoError(t, err)
	require.NoError(t, roles.GrantRole(admin, access.RoleApprover, approver))
	require.NoError(t, roles.GrantRole(admin, access.RoleRefunder, refunder))
	require.NoError(t, roles.GrantRole(admin, access.RoleDAO, dao))
	require.NoError(t, roles.GrantRole(admin, access.RoleSystem, system))
	return roles
}

func newFixture(t *testing.T, opts ...escrow.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, nativeRail(t), memory.New(), opts...)
}

func newFixtureWithStore(t *testing.T, s store.Store, opts ...escrow.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, nativeRail(t), s, opts...)
}

func newFixtureOn(t *testing.T, tr transport.Transport, s store.Store, opts ...escrow.Option) *fixture {
	t.Helper()

	r := &rail{Transport: tr}
	base := []escrow.Option{
		escrow.WithFeeSettings(100, vault),
		escrow.WithJournalConfig(10, 10*time.Millisecond),
	}
	f := &fixture{
		roles: newRoles(t),
		rail:  r,
		store: s,
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.g = escrow.New(s, r, f.roles, append(base, opts...)...)
	require.NoError(t, f.g.Start(f.ctx))
	t.Cleanup(func() {
		_ = f.g.Stop()
		f.cancel()
	})
	return f
}

func (f *fixture) place(t *testing.T, receiver, payer types.Address, ext uint64, amount types.Amount) uint64 {
	t.Helper()
	pid, err := f.g.PlacePayment(f.ctx, receiver, ledger.PaymentInput{ExternalID: ext, Payer: payer, Amount: amount}, amount)
	require.NoError(t, err)
	return pid
}

func (f *fixture) balance(t *testing.T, holder types.Address) types.Amount {
	t.Helper()
	amt, err := f.rail.BalanceOf(f.ctx, holder)
	require.NoError(t, err)
	return amt
}

func TestSettlementSplitsFee(t *testing.T) {
	f := newFixture(t)

	f.place(t, seller, buyer, 1, 1000)
	f.place(t, seller, buyer, 2, 2000)
	f.place(t, seller, buyer, 3, 3000)
	require.Len(t, f.g.GetPendingPayments(seller), 3)
	require.Equal(t, types.Amount(6000), f.g.GetTotalInState(seller, ledger.StatePending))

	frozen, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	require.Equal(t, types.Amount(6000), frozen.Total)
	require.Empty(t, f.g.GetPendingPayments(seller))

	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)
	require.Equal(t, types.Amount(6000), f.g.GetAmountApproved(seller))

	s, err := f.g.ProcessPayments(f.ctx, dao, seller)
	require.NoError(t, err)
	require.Equal(t, types.Amount(5940), s.Net)
	require.Equal(t, types.Amount(60), s.Fee)
	require.Equal(t, types.Amount(0), f.g.GetAmountApproved(seller))
	require.Equal(t, types.Amount(5940), f.g.GetAmountToPayOut(seller))
	require.Equal(t, types.Amount(60), f.g.GetAmountToPayOut(vault))
	require.Equal(t, 1, f.g.GetBucketCountWithState(seller, ledger.StateProcessed))

	po, err := f.g.PushPayment(f.ctx, dao, seller)
	require.NoError(t, err)
	require.Equal(t, payout.KindReceiver, po.Kind)
	require.Equal(t, types.Amount(5940), f.balance(t, seller))
	require.Equal(t, types.Amount(0), f.g.GetAmountToPayOut(seller))

	_, err = f.g.PushPayment(f.ctx, system, seller)
	require.ErrorIs(t, err, escrow.ErrNothingToPayOut)

	po, err = f.g.PushVaultPayment(f.ctx, dao)
	require.NoError(t, err)
	require.Equal(t, payout.KindVault, po.Kind)
	require.Equal(t, types.Amount(60), f.balance(t, vault))

	rec, err := f.g.Reconcile(f.ctx)
	require.NoError(t, err)
	require.True(t, rec.Balanced())
	require.Equal(t, types.Amount(0), rec.Liabilities)
	require.Equal(t, types.Amount(0), rec.Custody)
}

func TestPartialRefund(t *testing.T) {
	f := newFixture(t)

	pid := f.place(t, seller, buyer, 100, 100_000_000)
	require.Equal(t, funding-100_000_000, f.balance(t, buyer))

	po, err := f.g.RefundPayment(f.ctx, refunder, seller, pid, 25_000_000)
	require.NoError(t, err)
	require.Equal(t, payout.KindRefund, po.Kind)
	require.Equal(t, pid, po.PaymentID)

	p, err := f.g.GetPaymentByID(pid)
	require.NoError(t, err)
	require.Equal(t, types.Amount(75_000_000), p.Amount)
	require.Equal(t, types.Amount(25_000_000), p.RefundAmount)
	require.Equal(t, types.Amount(75_000_000), f.g.GetTotalInState(seller, ledger.StatePending))
	require.Equal(t, funding-75_000_000, f.balance(t, buyer))

	_, err = f.g.RefundPayment(f.ctx, refunder, seller, pid, 75_000_001)
	require.ErrorIs(t, err, escrow.ErrRefundExceedsAmount)
	require.True(t, escrow.IsValidation(err))

	// A full refund clears the payment.
	_, err = f.g.RefundPayment(f.ctx, refunder, seller, pid, 75_000_000)
	require.NoError(t, err)
	_, err = f.g.GetPaymentByID(pid)
	require.True(t, escrow.IsNotFound(err))
	require.Equal(t, funding, f.balance(t, buyer))
}

func TestRefundRejectedOnceApproved(t *testing.T) {
	f := newFixture(t)

	pid := f.place(t, seller, buyer, 7, 500)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)

	_, err = f.g.RefundPayment(f.ctx, refunder, seller, pid, 100)
	require.ErrorIs(t, err, escrow.ErrPaymentLocked)
	require.True(t, escrow.IsStateConflict(err))
	require.Equal(t, types.Amount(500), f.g.GetAmountApproved(seller))
}

func TestRefundTransferFailureIsUndone(t *testing.T) {
	f := newFixture(t)

	pid := f.place(t, seller, buyer, 9, 1000)
	f.rail.failCredit.Store(true)

	_, err := f.g.RefundPayment(f.ctx, refunder, seller, pid, 1000)
	require.Error(t, err)

	p, err := f.g.GetPaymentByID(pid)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1000), p.Amount)
	require.Equal(t, types.Amount(0), p.RefundAmount)
	require.Equal(t, types.Amount(1000), f.g.GetTotalInState(seller, ledger.StatePending))

	failed, err := f.g.ListPayouts(f.ctx, payout.ListOpts{Status: payout.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, payout.KindRefund, failed[0].Kind)
}

func TestBatchKeepsReceiversApart(t *testing.T) {
	f := newFixture(t)

	f.place(t, seller, buyer, 1, 1000)
	f.place(t, seller, buyer, 2, 2000)
	f.place(t, seller2, buyer2, 3, 4000)

	res, err := f.g.FreezePendingBatch(f.ctx, approver, []types.Address{seller, seller2})
	require.NoError(t, err)
	require.Equal(t, []types.Address{seller, seller2}, res.Succeeded)

	res, err = f.g.ApprovePaymentsBatch(f.ctx, approver, []types.Address{seller, seller2})
	require.NoError(t, err)
	require.Equal(t, types.Amount(3000), res.Buckets[seller].Total)
	require.Equal(t, types.Amount(4000), res.Buckets[seller2].Total)

	require.Equal(t, types.Amount(3000), f.g.GetAmountApproved(seller))
	require.Equal(t, types.Amount(4000), f.g.GetAmountApproved(seller2))
	require.Equal(t, 1, f.g.GetBucketCountWithState(seller, ledger.StateApproved))
	require.Equal(t, 1, f.g.GetBucketCountWithState(seller2, ledger.StateApproved))

	res, err = f.g.ProcessPaymentsBatch(f.ctx, dao, []types.Address{seller, seller2})
	require.NoError(t, err)
	require.Equal(t, types.Amount(2970), res.Settlements[seller].Net)
	require.Equal(t, types.Amount(3960), res.Settlements[seller2].Net)
	require.Equal(t, types.Amount(70), f.g.GetAmountToPayOut(vault))
}

func TestBatchReportsFailedReceivers(t *testing.T) {
	f := newFixture(t)

	f.place(t, seller, buyer, 1, 1000)
	f.place(t, seller2, buyer, 2, 2000)

	// seller2 already has a READY bucket, so the batch cannot freeze it again.
	_, err := f.g.FreezePending(f.ctx, approver, seller2)
	require.NoError(t, err)
	f.place(t, seller2, buyer, 3, 10)

	res, err := f.g.FreezePendingBatch(f.ctx, approver, []types.Address{seller, seller2, mallory, seller})
	require.Error(t, err)

	var berr *escrow.BatchError
	require.True(t, errors.As(err, &berr))
	require.Equal(t, []types.Address{mallory, seller2}, berr.Failed())
	require.ErrorIs(t, berr.For(seller2), escrow.ErrReadyBucketExists)
	require.ErrorIs(t, berr.For(mallory), escrow.ErrNoPendingBucket)
	require.Nil(t, berr.For(seller))

	require.Equal(t, []types.Address{seller}, res.Succeeded)
	require.Equal(t, 1, f.g.GetBucketCountWithState(seller, ledger.StateReady))
	require.Equal(t, types.Amount(10), f.g.GetTotalInState(seller2, ledger.StatePending))
}

func TestPlacementFundsChecks(t *testing.T) {
	f := newFixture(t)
	in := ledger.PaymentInput{ExternalID: 5, Payer: buyer, Amount: 1000}

	_, err := f.g.PlacePayment(f.ctx, seller, in, 999)
	require.ErrorIs(t, err, escrow.ErrInsufficientPayment)
	require.True(t, escrow.IsValidation(err))
	require.Equal(t, funding, f.balance(t, buyer))

	require.Equal(t, types.Amount(0), f.balance(t, custody))

	_, err = f.g.PlacePayment(f.ctx, seller, in, 5000)
	require.NoError(t, err)
	require.Equal(t, funding-1000, f.balance(t, buyer))
	require.Equal(t, types.Amount(1000), f.balance(t, custody))

	_, err = f.g.PlacePayment(f.ctx, escrow.ZeroAddress, in, 1000)
	require.ErrorIs(t, err, escrow.ErrZeroAddress)

	_, err = f.g.PlacePayment(f.ctx, seller, ledger.PaymentInput{ExternalID: 6, Payer: buyer}, 0)
	require.ErrorIs(t, err, escrow.ErrZeroValue)
}

func TestRepeatPlacementMerges(t *testing.T) {
	f := newFixture(t)

	first := f.place(t, seller, buyer, 42, 1000)
	second := f.place(t, seller, buyer, 42, 500)
	require.Equal(t, first, second)

	p, err := f.g.GetPaymentByExternalID(42)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1500), p.Amount)

	// A different receiver may not reuse a live reference; nothing is
	// collected.
	_, err = f.g.PlacePayment(f.ctx, seller2, ledger.PaymentInput{ExternalID: 42, Payer: buyer, Amount: 10}, 10)
	require.ErrorIs(t, err, escrow.ErrReceiverMismatch)
	require.True(t, escrow.IsOwnershipMismatch(err))
	require.Equal(t, funding-1500, f.balance(t, buyer))
	require.Equal(t, types.Amount(1500), f.balance(t, custody))
}

func TestMergeRejectPolicy(t *testing.T) {
	f := newFixture(t, escrow.WithMergePolicy(ledger.MergeReject))

	f.place(t, seller, buyer, 42, 1000)
	_, err := f.g.PlacePayment(f.ctx, seller, ledger.PaymentInput{ExternalID: 42, Payer: buyer2, Amount: 10}, 10)
	require.ErrorIs(t, err, escrow.ErrPayerMismatch)
	require.Equal(t, funding, f.balance(t, buyer2))
}

func TestReviewRoundTrip(t *testing.T) {
	f := newFixture(t)

	pid := f.place(t, seller, buyer, 1, 300)
	f.place(t, seller, buyer, 2, 700)

	rev, err := f.g.ReviewPayment(f.ctx, approver, pid)
	require.NoError(t, err)
	require.Equal(t, ledger.StateReview, rev.To)
	require.Equal(t, types.Amount(700), f.g.GetTotalInState(seller, ledger.StatePending))
	require.Equal(t, types.Amount(300), f.g.GetTotalInState(seller, ledger.StateReview))

	rev, err = f.g.ReviewPayment(f.ctx, approver, pid)
	require.NoError(t, err)
	require.Equal(t, ledger.StatePending, rev.To)
	require.Equal(t, types.Amount(1000), f.g.GetTotalInState(seller, ledger.StatePending))
}

func TestUnauthorizedCallers(t *testing.T) {
	f := newFixture(t)
	f.place(t, seller, buyer, 1, 1000)

	_, err := f.g.FreezePending(f.ctx, mallory, seller)
	require.ErrorIs(t, err, escrow.ErrUnauthorized)
	require.True(t, escrow.IsUnauthorized(err))

	var ue *access.UnauthorizedError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, access.RoleApprover, ue.Role)

	_, err = f.g.ProcessPayments(f.ctx, approver, seller)
	require.True(t, escrow.IsUnauthorized(err))
	_, err = f.g.RefundPayment(f.ctx, dao, seller, 1, 1)
	require.True(t, escrow.IsUnauthorized(err))
	_, err = f.g.FreezePendingBatch(f.ctx, mallory, []types.Address{seller})
	require.True(t, escrow.IsUnauthorized(err))
	require.True(t, escrow.IsUnauthorized(f.g.SetFeeBps(f.ctx, approver, 50)))

	// Nothing moved.
	require.Equal(t, types.Amount(1000), f.g.GetTotalInState(seller, ledger.StatePending))

	denied, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypeAccessDenied})
	require.NoError(t, err)
	require.Len(t, denied, 5)
	require.Equal(t, mallory, denied[0].Actor)
}

func TestFeesWithoutVault(t *testing.T) {
	f := newFixture(t, escrow.WithFeeSettings(250, escrow.ZeroAddress))

	f.place(t, seller, buyer, 1, 10_000)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ProcessPayments(f.ctx, dao, seller)
	require.NoError(t, err)

	require.Equal(t, types.Amount(250), f.g.GetUndistributedFees())
	require.Equal(t, types.Amount(9750), f.g.GetAmountToPayOut(seller))

	_, err = f.g.PushVaultPayment(f.ctx, dao)
	require.ErrorIs(t, err, escrow.ErrNoVault)

	require.NoError(t, f.g.SetVaultAddress(f.ctx, dao, vault))
	po, err := f.g.PushVaultPayment(f.ctx, dao)
	require.NoError(t, err)
	require.Equal(t, types.Amount(250), po.Amount)
	require.Equal(t, types.Amount(0), f.g.GetUndistributedFees())
	require.Equal(t, types.Amount(250), f.balance(t, vault))
}

func TestFeeChangeAppliesToLaterProcessing(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.g.SetFeeBps(f.ctx, dao, 10_001), escrow.ErrInvalidBps)
	require.NoError(t, f.g.SetFeeBps(f.ctx, dao, 0))
	require.Equal(t, uint16(0), f.g.FeeBps())

	f.place(t, seller, buyer, 1, 999)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)
	s, err := f.g.ProcessPayments(f.ctx, dao, seller)
	require.NoError(t, err)
	require.Equal(t, types.Amount(999), s.Net)
	require.Equal(t, types.Amount(0), s.Fee)

	changes, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypeFeeBpsChanged})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "0", changes[0].Metadata["new"])
}

func TestFailedPayoutRestoresBalance(t *testing.T) {
	f := newFixture(t)

	f.place(t, seller, buyer, 1, 1000)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ProcessPayments(f.ctx, dao, seller)
	require.NoError(t, err)

	f.rail.failCredit.Store(true)
	_, err = f.g.PullPayment(f.ctx, seller)
	require.Error(t, err)
	require.Equal(t, types.Amount(990), f.g.GetAmountToPayOut(seller))

	f.rail.failCredit.Store(false)
	po, err := f.g.PullPayment(f.ctx, seller)
	require.NoError(t, err)
	require.Equal(t, types.Amount(990), po.Amount)

	receipts, err := f.g.ListPayouts(f.ctx, payout.ListOpts{Holder: seller.String()})
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	failed, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypePayoutFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "rail unavailable", failed[0].Metadata["reason"])
}

func TestJournalRecordsPlacements(t *testing.T) {
	f := newFixture(t, escrow.WithJournalBuffer(1))

	for i := uint64(1); i <= 5; i++ {
		f.place(t, seller, buyer, i, types.Amount(i*100))
	}

	placed, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypePaymentPlaced})
	require.NoError(t, err)
	require.Len(t, placed, 5)
	for _, e := range placed {
		require.Equal(t, buyer, e.Payer)
		require.Equal(t, seller, e.Receiver)
		require.NotZero(t, e.PaymentID)
		require.NotContains(t, e.Metadata, "amount_units")
	}
}

func TestJournalRendersMajorUnits(t *testing.T) {
	f := newFixture(t, escrow.WithDisplayDecimals(2))

	f.place(t, seller, buyer, 1, 1500)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ApprovePayments(f.ctx, approver, seller)
	require.NoError(t, err)
	_, err = f.g.ProcessPayments(f.ctx, dao, seller)
	require.NoError(t, err)

	placed, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypePaymentPlaced})
	require.NoError(t, err)
	require.Len(t, placed, 1)
	require.Equal(t, "15.00", placed[0].Metadata["amount_units"])
	require.NotContains(t, placed[0].Metadata, "fee_units")

	processed, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypeBucketProcessed})
	require.NoError(t, err)
	require.Len(t, processed, 1)
	require.Equal(t, "15.00", processed[0].Metadata["amount_units"])
	require.Equal(t, "0.15", processed[0].Metadata["fee_units"])
}

func TestRoleChangesAreJournaled(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.roles.GrantRole(admin, access.RoleApprover, mallory))
	require.NoError(t, f.roles.RevokeRole(admin, access.RoleApprover, mallory))

	granted, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypeRoleGranted})
	require.NoError(t, err)
	require.Len(t, granted, 1)
	require.Equal(t, mallory.String(), granted[0].Metadata["account"])

	revoked, err := f.g.ListEvents(f.ctx, event.ListOpts{Type: event.TypeRoleRevoked})
	require.NoError(t, err)
	require.Len(t, revoked, 1)
}

func TestRestartRestoresLedger(t *testing.T) {
	backing := ds_sync.MutexWrap(ds.NewMapDatastore())
	f := newFixtureWithStore(t, dsstore.New(backing))

	f.place(t, seller, buyer, 1, 1000)
	f.place(t, seller, buyer, 2, 2000)
	_, err := f.g.FreezePending(f.ctx, approver, seller)
	require.NoError(t, err)
	f.place(t, seller, buyer, 3, 500)
	require.NoError(t, f.g.SetFeeBps(f.ctx, dao, 300))
	require.NoError(t, f.g.Stop())

	r := transport.NewNativeWallet(custody)
	g := escrow.New(dsstore.New(backing), r, newRoles(t))
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Stop() })

	require.Equal(t, uint16(300), g.FeeBps())
	require.Equal(t, types.Amount(3000), g.GetTotalInState(seller, ledger.StateReady))
	require.Equal(t, types.Amount(500), g.GetTotalInState(seller, ledger.StatePending))

	p, err := g.GetPaymentByExternalID(3)
	require.NoError(t, err)
	require.Equal(t, types.Amount(500), p.Amount)
}

func TestReconcileDetectsShortfall(t *testing.T) {
	f := newFixture(t)

	f.place(t, seller, buyer, 1, 1000)
	rec, err := f.g.Reconcile(f.ctx)
	require.NoError(t, err)
	require.Equal(t, types.Amount(1000), rec.Custody)
	require.Equal(t, types.Amount(1000), rec.Liabilities)

	// Drain custody behind the ledger's back.
	require.NoError(t, f.rail.Transport.Credit(f.ctx, mallory, 400))
	rec, err = f.g.Reconcile(f.ctx)
	require.ErrorIs(t, err, escrow.ErrCustodyMismatch)
	require.False(t, rec.Balanced())
	require.Equal(t, types.Amount(400), rec.Shortfall)
}

func TestOperationsRequireStart(t *testing.T) {
	g := escrow.New(memory.New(), transport.NewNativeWallet(custody), newRoles(t))

	_, err := g.PlacePayment(context.Background(), seller, ledger.PaymentInput{ExternalID: 1, Payer: buyer, Amount: 1}, 1)
	require.ErrorIs(t, err, escrow.ErrNotStarted)
	require.ErrorIs(t, g.Stop(), escrow.ErrNotStarted)
}

func TestLifecycleOnEachRail(t *testing.T) {
	for _, rc := range rails {
		t.Run(rc.name, func(t *testing.T) {
			f := newFixtureOn(t, rc.build(t), memory.New())

			pid := f.place(t, seller, buyer, 1, 1000)
			f.place(t, seller, buyer, 2, 2000)
			f.place(t, seller2, buyer2, 3, 4000)
			require.Equal(t, types.Amount(7000), f.balance(t, custody))
			require.Equal(t, funding-3000, f.balance(t, buyer))

			po, err := f.g.RefundPayment(f.ctx, refunder, seller, pid, 300)
			require.NoError(t, err)
			require.Equal(t, f.rail.Name(), po.Rail)
			require.Equal(t, funding-2700, f.balance(t, buyer))
			require.Equal(t, types.Amount(6700), f.balance(t, custody))

			for _, r := range []types.Address{seller, seller2} {
				_, err = f.g.FreezePending(f.ctx, approver, r)
				require.NoError(t, err)
				_, err = f.g.ApprovePayments(f.ctx, approver, r)
				require.NoError(t, err)
			}
			res, err := f.g.ProcessPaymentsBatch(f.ctx, dao, []types.Address{seller, seller2})
			require.NoError(t, err)
			require.Equal(t, types.Amount(2673), res.Settlements[seller].Net)
			require.Equal(t, types.Amount(3960), res.Settlements[seller2].Net)
			require.Equal(t, types.Amount(67), f.g.GetAmountToPayOut(vault))

			_, err = f.g.PushPayment(f.ctx, system, seller)
			require.NoError(t, err)
			require.Equal(t, types.Amount(2673), f.balance(t, seller))

			_, err = f.g.PullPayment(f.ctx, seller2)
			require.NoError(t, err)
			require.Equal(t, types.Amount(3960), f.balance(t, seller2))

			_, err = f.g.PushVaultPayment(f.ctx, dao)
			require.NoError(t, err)
			require.Equal(t, types.Amount(67), f.balance(t, vault))

			rec, err := f.g.Reconcile(f.ctx)
			require.NoError(t, err)
			require.True(t, rec.Balanced())
			require.Equal(t, types.Amount(0), rec.Custody)
			require.Equal(t, f.rail.Name(), rec.Rail)

			receipts, err := f.g.ListPayouts(f.ctx, payout.ListOpts{Status: payout.StatusPaid})
			require.NoError(t, err)
			require.Len(t, receipts, 4)
		})
	}
}

func TestRejectedPlacementKeepsAllowance(t *testing.T) {
	w := transport.NewTokenWallet("USDC", custody)
	require.NoError(t, w.Mint(buyer, funding))
	w.Approve(buyer, 1010)

	f := newFixtureOn(t, w, memory.New())
	f.place(t, seller, buyer, 42, 1000)
	require.Equal(t, types.Amount(10), w.Allowance(buyer))

	_, err := f.g.PlacePayment(f.ctx, seller2, ledger.PaymentInput{ExternalID: 42, Payer: buyer, Amount: 10}, 10)
	require.ErrorIs(t, err, escrow.ErrReceiverMismatch)
	require.Equal(t, types.Amount(10), w.Allowance(buyer))
	require.Equal(t, funding-1000, f.balance(t, buyer))
	require.Equal(t, types.Amount(1000), f.balance(t, custody))

	// The remaining allowance still funds a valid placement.
	f.place(t, seller, buyer, 43, 10)
	require.Equal(t, types.Amount(0), w.Allowance(buyer))

	_, err = f.g.PlacePayment(f.ctx, seller, ledger.PaymentInput{ExternalID: 44, Payer: buyer, Amount: 1}, 1)
	require.ErrorIs(t, err, escrow.ErrInsufficientAllowance)
	_, err = f.g.GetPaymentByExternalID(44)
	require.True(t, escrow.IsNotFound(err))
}

func TestStoppedGatewayCannotRestart(t *testing.T) {
	g := escrow.New(memory.New(), transport.NewNativeWallet(custody), newRoles(t))
	require.NoError(t, g.Start(context.Background()))
	require.NoError(t, g.Stop())

	require.ErrorIs(t, g.Start(context.Background()), escrow.ErrStopped)
	require.ErrorIs(t, g.Stop(), escrow.ErrNotStarted)
}
