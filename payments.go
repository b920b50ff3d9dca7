package escrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// ──────────────────────────────────────────────────
// Payment placement
// ──────────────────────────────────────────────────

// PlacePayment takes a payment for receiver. supplied is what the payer
// sent; it must cover in.Amount, and exactly in.Amount is pulled into
// custody. A live entry with the same external ID absorbs the amount. The
// ledger's payment ID is returned.
func (g *Gateway) PlacePayment(ctx context.Context, receiver types.Address, in ledger.PaymentInput, supplied types.Amount) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return 0, err
	}

	switch {
	case receiver.IsZero():
		return 0, ValidationError{Field: "receiver", Message: "zero address", Err: ErrZeroAddress}
	case in.Payer.IsZero():
		return 0, ValidationError{Field: "payer", Message: "zero address", Err: ErrZeroAddress}
	case in.Amount.IsZero():
		return 0, ValidationError{Field: "amount", Message: "zero value", Err: ErrZeroValue}
	case supplied < in.Amount:
		return 0, fmt.Errorf("%w: supplied %s, amount %s", ErrInsufficientPayment, supplied, in.Amount)
	}

	// The book only changes under g.mu: a placement that passes here is
	// accepted by AddPayment below.
	if err := g.book.CheckPayment(receiver, in); err != nil {
		return 0, err
	}

	if err := g.rail.Debit(ctx, in.Payer, in.Amount); err != nil {
		return 0, fmt.Errorf("escrow: collect %s from %s: %w", in.Amount, in.Payer, err)
	}

	pl, err := g.book.AddPayment(receiver, in)
	if err != nil {
		if cerr := g.rail.Credit(context.WithoutCancel(ctx), in.Payer, in.Amount); cerr != nil {
			g.logger.Error("escrow: failed to return rejected payment",
				"payer", in.Payer,
				"amount", in.Amount,
				"error", cerr,
			)
			return 0, errors.Join(err, fmt.Errorf("escrow: return %s to %s: %w", in.Amount, in.Payer, cerr))
		}
		return 0, err
	}

	e := event.PaymentPlaced(in.Payer, receiver, in.Amount, pl.Payment.ID)
	e.Actor = in.Payer
	e.With("external_id", strconv.FormatUint(in.ExternalID, 10))
	if pl.Merged {
		e.With("merged", "true")
	}
	if supplied > in.Amount {
		e.With("supplied", supplied.String())
	}
	g.record(ctx, e)

	g.plugins.EmitPaymentPlaced(ctx, pl)
	g.checkpoint(ctx, receiver)

	g.logger.Debug("payment placed",
		"receiver", receiver,
		"payer", in.Payer,
		"payment_id", pl.Payment.ID,
		"external_id", in.ExternalID,
		"amount", in.Amount,
		"merged", pl.Merged,
	)

	return pl.Payment.ID, nil
}

// ──────────────────────────────────────────────────
// Review and refunds
// ──────────────────────────────────────────────────

// ReviewPayment moves a pending or ready payment into its receiver's
// review bucket, or a reviewed payment back into the pending bucket.
func (g *Gateway) ReviewPayment(ctx context.Context, caller types.Address, paymentID uint64) (*ledger.Review, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleApprover); err != nil {
		return nil, err
	}

	rev, err := g.book.Review(paymentID)
	if err != nil {
		return nil, err
	}

	p := rev.Payment
	e := event.New(event.TypePaymentReviewed)
	e.Receiver = p.Receiver
	e.Payer = p.Payer
	e.Actor = caller
	e.PaymentID = p.ID
	e.Amount = p.Amount
	e.With("from", rev.From.String()).With("to", rev.To.String())
	g.record(ctx, e)

	g.plugins.EmitPaymentReviewed(ctx, rev)
	g.checkpoint(ctx, p.Receiver)

	return rev, nil
}

// RefundPayment returns amount of a pending or reviewed payment to its
// payer. The ledger is debited first; if the transfer fails the refund is
// undone and a failed receipt is stored.
func (g *Gateway) RefundPayment(ctx context.Context, caller, receiver types.Address, paymentID uint64, amount types.Amount) (*payout.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleRefunder); err != nil {
		return nil, err
	}

	r, err := g.book.Refund(receiver, paymentID, amount)
	if err != nil {
		return nil, err
	}

	po := payout.New(r.Payer(), payout.KindRefund, amount, g.rail.Name())
	po.PaymentID = paymentID

	if err := g.rail.Credit(ctx, r.Payer(), amount); err != nil {
		g.book.UndoRefund(r)
		g.payoutFailed(ctx, po, caller, err)
		return nil, fmt.Errorf("escrow: refund %s to %s: %w", amount, r.Payer(), err)
	}

	e := event.New(event.TypePaymentRefunded)
	e.Receiver = receiver
	e.Payer = r.Payer()
	e.Actor = caller
	e.PaymentID = paymentID
	e.Amount = amount
	e.With("remaining", r.After.Amount.String())
	if r.Cleared {
		e.With("cleared", "true")
	}
	g.record(ctx, e)
	g.plugins.EmitPaymentRefunded(ctx, r)

	g.payoutReleased(ctx, po, caller)
	g.checkpoint(ctx, receiver)

	g.logger.Debug("payment refunded",
		"receiver", receiver,
		"payment_id", paymentID,
		"amount", amount,
		"remaining", r.After.Amount,
	)

	return po, nil
}
