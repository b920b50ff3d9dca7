package escrow

import (
	"context"
	"fmt"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// PushPayment releases receiver's payable balance to it.
func (g *Gateway) PushPayment(ctx context.Context, caller, receiver types.Address) (*payout.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleDAO, access.RoleSystem); err != nil {
		return nil, err
	}
	return g.release(ctx, caller, receiver, g.kindFor(receiver))
}

// PullPayment releases the caller's own payable balance.
func (g *Gateway) PullPayment(ctx context.Context, caller types.Address) (*payout.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ValidationError{Field: "caller", Message: "zero address", Err: ErrZeroAddress}
	}
	return g.release(ctx, caller, caller, g.kindFor(caller))
}

// PushVaultPayment moves fees collected while no vault was set into the
// vault's balance and releases that balance to the vault.
func (g *Gateway) PushVaultPayment(ctx context.Context, caller types.Address) (*payout.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleDAO); err != nil {
		return nil, err
	}

	vault := g.fees.VaultAddress()
	if vault.IsZero() {
		return nil, ErrNoVault
	}

	swept, err := g.book.SweepFees(vault)
	if err != nil {
		return nil, err
	}
	if !swept.IsZero() {
		g.logger.Info("swept undistributed fees into vault",
			"vault", vault,
			"amount", swept,
		)
		g.checkpoint(ctx)
	}

	return g.release(ctx, caller, vault, payout.KindVault)
}

func (g *Gateway) kindFor(holder types.Address) payout.Kind {
	if v := g.fees.VaultAddress(); !v.IsZero() && v == holder {
		return payout.KindVault
	}
	return payout.KindReceiver
}

// release debits holder's payable balance before the transfer leaves
// custody. A failed transfer restores the balance.
func (g *Gateway) release(ctx context.Context, caller, holder types.Address, kind payout.Kind) (*payout.Payout, error) {
	amt, err := g.book.DebitPayable(holder)
	if err != nil {
		return nil, err
	}

	po := payout.New(holder, kind, amt, g.rail.Name())

	if err := g.rail.Credit(ctx, holder, amt); err != nil {
		if cerr := g.book.CreditPayable(holder, amt); cerr != nil {
			g.logger.Error("escrow: failed to restore payable balance",
				"holder", holder,
				"amount", amt,
				"error", cerr,
			)
		}
		g.payoutFailed(ctx, po, caller, err)
		return nil, fmt.Errorf("escrow: release %s to %s: %w", amt, holder, err)
	}

	g.payoutReleased(ctx, po, caller)
	g.checkpoint(ctx)

	g.logger.Debug("payout released",
		"holder", holder,
		"kind", kind,
		"amount", amt,
		"payout_id", po.ID,
	)

	return po, nil
}

func (g *Gateway) payoutReleased(ctx context.Context, po *payout.Payout, caller types.Address) {
	g.savePayout(ctx, po)
	g.record(ctx, payoutEvent(event.TypePayoutReleased, po, caller))
	g.plugins.EmitPayoutReleased(ctx, po)
}

func (g *Gateway) payoutFailed(ctx context.Context, po *payout.Payout, caller types.Address, cause error) {
	po.Fail(cause)
	g.savePayout(ctx, po)
	g.record(ctx, payoutEvent(event.TypePayoutFailed, po, caller).With("reason", po.Reason))
	g.plugins.EmitPayoutFailed(ctx, po, cause)

	g.logger.Error("escrow: payout failed",
		"holder", po.Holder,
		"kind", po.Kind,
		"amount", po.Amount,
		"error", cause,
	)
}

func payoutEvent(t event.Type, po *payout.Payout, caller types.Address) *event.Event {
	e := event.New(t)
	e.Actor = caller
	e.Amount = po.Amount
	e.PaymentID = po.PaymentID
	if po.Kind == payout.KindRefund {
		e.Payer = po.Holder
	} else {
		e.Receiver = po.Holder
	}
	e.With("payout_id", po.ID.String()).
		With("kind", string(po.Kind)).
		With("rail", po.Rail)
	return e
}
