package escrow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// ──────────────────────────────────────────────────
// Fee configuration
// ──────────────────────────────────────────────────

// SetFeeBps changes the fee rate applied by later processing.
func (g *Gateway) SetFeeBps(ctx context.Context, caller types.Address, bps uint16) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return err
	}

	before := g.fees.Settings()
	if err := g.fees.SetFeeBps(caller, bps); err != nil {
		g.denied(ctx, err)
		return err
	}
	after := g.fees.Settings()

	e := event.New(event.TypeFeeBpsChanged)
	e.Actor = caller
	e.With("old", strconv.FormatUint(uint64(before.Bps), 10)).
		With("new", strconv.FormatUint(uint64(after.Bps), 10))
	g.feeChanged(ctx, before, after, e)
	return nil
}

// SetVaultAddress changes where fees are paid. The zero address unsets
// the vault; fees processed afterwards accumulate undistributed.
func (g *Gateway) SetVaultAddress(ctx context.Context, caller, vault types.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return err
	}

	before := g.fees.Settings()
	if err := g.fees.SetVaultAddress(caller, vault); err != nil {
		g.denied(ctx, err)
		return err
	}
	after := g.fees.Settings()

	e := event.New(event.TypeVaultChanged)
	e.Actor = caller
	e.With("old", before.Vault.String()).With("new", after.Vault.String())
	g.feeChanged(ctx, before, after, e)
	return nil
}

func (g *Gateway) feeChanged(ctx context.Context, before, after fee.Settings, e *event.Event) {
	if err := g.store.SaveFeeSettings(ctx, &after); err != nil {
		g.logger.Error("escrow: failed to store fee settings",
			"error", err,
		)
	}
	g.record(ctx, e)
	g.plugins.EmitFeeChanged(ctx, before, after)

	g.logger.Info("fee settings changed",
		"fee_bps", after.Bps,
		"vault", after.Vault,
	)
}

// FeeBps returns the current fee rate.
func (g *Gateway) FeeBps() uint16 { return g.fees.FeeBps() }

// VaultAddress returns the current vault, or the zero address.
func (g *Gateway) VaultAddress() types.Address { return g.fees.VaultAddress() }

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetPaymentByID returns a live payment.
func (g *Gateway) GetPaymentByID(paymentID uint64) (ledger.Payment, error) {
	return g.book.Payment(paymentID)
}

// GetPaymentByExternalID returns the latest payment registered under the
// caller's payment reference.
func (g *Gateway) GetPaymentByExternalID(externalID uint64) (ledger.Payment, error) {
	return g.book.PaymentByExternal(externalID)
}

// GetPendingPayments returns the payments in receiver's pending bucket.
func (g *Gateway) GetPendingPayments(receiver types.Address) []ledger.Payment {
	return g.book.PendingPayments(receiver)
}

// GetPaymentsInState returns receiver's live payments in state s.
func (g *Gateway) GetPaymentsInState(receiver types.Address, s ledger.State) []ledger.Payment {
	return g.book.PaymentsInState(receiver, s)
}

// GetTotalInState sums receiver's buckets in state s.
func (g *Gateway) GetTotalInState(receiver types.Address, s ledger.State) types.Amount {
	return g.book.TotalInState(receiver, s)
}

// GetBucketCountWithState counts receiver's buckets in state s, including
// historical ones.
func (g *Gateway) GetBucketCountWithState(receiver types.Address, s ledger.State) int {
	return g.book.BucketCountWithState(receiver, s)
}

// GetAmountApproved is receiver's approved but unprocessed total.
func (g *Gateway) GetAmountApproved(receiver types.Address) types.Amount {
	return g.book.AmountApproved(receiver)
}

// GetAmountToPayOut is holder's payable balance.
func (g *Gateway) GetAmountToPayOut(holder types.Address) types.Amount {
	return g.book.Payable(holder)
}

// GetUndistributedFees is the fee total collected while no vault was set.
func (g *Gateway) GetUndistributedFees() types.Amount {
	return g.book.UndistributedFees()
}

// GetBuckets returns receiver's buckets oldest first.
func (g *Gateway) GetBuckets(receiver types.Address) []ledger.Bucket {
	return g.book.Buckets(receiver)
}

// Receivers lists every receiver with an account.
func (g *Gateway) Receivers() []types.Address {
	return g.book.Receivers()
}

// GetPayout returns a stored payout receipt.
func (g *Gateway) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	return g.store.GetPayout(ctx, payoutID)
}

// ListPayouts returns stored payout receipts.
func (g *Gateway) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	return g.store.ListPayouts(ctx, opts)
}

// ListEvents returns journal entries, flushing queued events first.
func (g *Gateway) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	if err := g.Flush(ctx); err != nil {
		return nil, err
	}
	return g.store.ListEvents(ctx, opts)
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// Reconciliation compares what custody holds against what the ledger owes.
type Reconciliation struct {
	Rail        string
	Custody     types.Amount
	Liabilities types.Amount
	Surplus     types.Amount
	Shortfall   types.Amount
}

// Balanced reports whether custody covers every liability.
func (r *Reconciliation) Balanced() bool { return r.Shortfall.IsZero() }

// Reconcile verifies the ledger invariants and checks the custody balance
// against unsettled payments plus payable balances. A shortfall returns
// ErrCustodyMismatch along with the report.
func (g *Gateway) Reconcile(ctx context.Context) (*Reconciliation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.book.Verify(); err != nil {
		return nil, err
	}

	held, err := g.rail.BalanceOf(ctx, g.rail.Custody())
	if err != nil {
		return nil, fmt.Errorf("escrow: read custody balance: %w", err)
	}

	rec := &Reconciliation{
		Rail:        g.rail.Name(),
		Custody:     held,
		Liabilities: g.book.Liabilities(),
	}
	if held >= rec.Liabilities {
		rec.Surplus = held - rec.Liabilities
		return rec, nil
	}

	rec.Shortfall = rec.Liabilities - held
	g.logger.Error("escrow: custody shortfall",
		"rail", rec.Rail,
		"custody", held,
		"liabilities", rec.Liabilities,
		"shortfall", rec.Shortfall,
	)
	return rec, fmt.Errorf("%w: short by %s", ErrCustodyMismatch, rec.Shortfall)
}
