package escrow

import (
	"context"
	"strconv"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/types"
)

// BatchResult holds what a batch call committed, keyed by receiver.
// Buckets is filled by freeze and approve batches, Settlements by process
// batches.
type BatchResult struct {
	Succeeded   []types.Address
	Buckets     map[types.Address]ledger.Bucket
	Settlements map[types.Address]*ledger.Settlement
}

func newBatchResult() *BatchResult {
	return &BatchResult{
		Buckets:     make(map[types.Address]ledger.Bucket),
		Settlements: make(map[types.Address]*ledger.Settlement),
	}
}

// ──────────────────────────────────────────────────
// Freeze
// ──────────────────────────────────────────────────

// FreezePending turns the receiver's pending bucket READY.
func (g *Gateway) FreezePending(ctx context.Context, caller, receiver types.Address) (ledger.Bucket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return ledger.Bucket{}, err
	}
	if err := g.authorize(ctx, caller, access.RoleApprover); err != nil {
		return ledger.Bucket{}, err
	}
	return g.freeze(ctx, caller, receiver)
}

// FreezePendingBatch freezes each receiver independently. Receivers that
// fail are reported in the returned *BatchError; the rest stay frozen.
func (g *Gateway) FreezePendingBatch(ctx context.Context, caller types.Address, receivers []types.Address) (*BatchResult, error) {
	return g.bucketBatch(ctx, "freeze", caller, receivers, g.freeze)
}

func (g *Gateway) freeze(ctx context.Context, caller, receiver types.Address) (ledger.Bucket, error) {
	b, err := g.book.Freeze(receiver)
	if err != nil {
		return ledger.Bucket{}, err
	}

	g.bucketEvent(ctx, event.TypeBucketFrozen, caller, &b)
	g.plugins.EmitBucketFrozen(ctx, &b)
	g.checkpoint(ctx, receiver)
	return b, nil
}

// ──────────────────────────────────────────────────
// Approve
// ──────────────────────────────────────────────────

// ApprovePayments turns the receiver's READY bucket APPROVED.
func (g *Gateway) ApprovePayments(ctx context.Context, caller, receiver types.Address) (ledger.Bucket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return ledger.Bucket{}, err
	}
	if err := g.authorize(ctx, caller, access.RoleApprover); err != nil {
		return ledger.Bucket{}, err
	}
	return g.approve(ctx, caller, receiver)
}

// ApprovePaymentsBatch approves each receiver independently.
func (g *Gateway) ApprovePaymentsBatch(ctx context.Context, caller types.Address, receivers []types.Address) (*BatchResult, error) {
	return g.bucketBatch(ctx, "approve", caller, receivers, g.approve)
}

func (g *Gateway) approve(ctx context.Context, caller, receiver types.Address) (ledger.Bucket, error) {
	b, err := g.book.Approve(receiver)
	if err != nil {
		return ledger.Bucket{}, err
	}

	g.bucketEvent(ctx, event.TypeBucketApproved, caller, &b)
	g.plugins.EmitBucketApproved(ctx, &b)
	g.checkpoint(ctx, receiver)
	return b, nil
}

func (g *Gateway) bucketEvent(ctx context.Context, t event.Type, caller types.Address, b *ledger.Bucket) {
	e := event.New(t)
	e.Receiver = b.Receiver
	e.Actor = caller
	e.Amount = b.Total
	e.With("bucket_id", b.ID.String()).With("payments", strconv.Itoa(len(b.Payments)))
	g.record(ctx, e)
}

func (g *Gateway) bucketBatch(
	ctx context.Context,
	op string,
	caller types.Address,
	receivers []types.Address,
	fn func(context.Context, types.Address, types.Address) (ledger.Bucket, error),
) (*BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleApprover); err != nil {
		return nil, err
	}

	res := newBatchResult()
	berr := &BatchError{Op: op}
	for _, r := range dedupe(receivers) {
		b, err := fn(ctx, caller, r)
		if err != nil {
			berr.add(r, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, r)
		res.Buckets[r] = b
	}
	return res, g.batchDone(berr, len(receivers))
}

func (g *Gateway) batchDone(berr *BatchError, size int) error {
	if !berr.HasErrors() {
		return nil
	}
	g.logger.Warn("escrow: batch partially failed",
		"op", berr.Op,
		"receivers", size,
		"failed", len(berr.Errors),
	)
	return berr
}

// ──────────────────────────────────────────────────
// Process
// ──────────────────────────────────────────────────

// ProcessPayments settles every APPROVED bucket of receiver at the current
// fee rate. The net amount becomes payable to the receiver and the fee to
// the vault, or to the undistributed pool when no vault is set.
func (g *Gateway) ProcessPayments(ctx context.Context, caller, receiver types.Address) (*ledger.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleDAO); err != nil {
		return nil, err
	}
	return g.process(ctx, caller, receiver)
}

// ProcessPaymentsBatch processes each receiver independently.
func (g *Gateway) ProcessPaymentsBatch(ctx context.Context, caller types.Address, receivers []types.Address) (*BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.ready(); err != nil {
		return nil, err
	}
	if err := g.authorize(ctx, caller, access.RoleDAO); err != nil {
		return nil, err
	}

	res := newBatchResult()
	berr := &BatchError{Op: "process"}
	for _, r := range dedupe(receivers) {
		s, err := g.process(ctx, caller, r)
		if err != nil {
			berr.add(r, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, r)
		res.Settlements[r] = s
	}
	return res, g.batchDone(berr, len(receivers))
}

func (g *Gateway) process(ctx context.Context, caller, receiver types.Address) (*ledger.Settlement, error) {
	s, err := g.book.Process(receiver, g.fees.FeeBps(), g.fees.VaultAddress())
	if err != nil {
		return nil, err
	}

	events := make([]*event.Event, 0, len(s.Buckets))
	for _, bs := range s.Buckets {
		e := event.New(event.TypeBucketProcessed)
		e.Receiver = receiver
		e.Actor = caller
		e.Amount = bs.Total
		e.Fee = bs.Fee
		e.With("bucket_id", bs.BucketID.String()).
			With("net", bs.Net.String()).
			With("fee_bps", strconv.FormatUint(uint64(s.FeeBps), 10))
		if !s.Vault.IsZero() {
			e.With("vault", s.Vault.String())
		}
		events = append(events, e)
	}
	g.record(ctx, events...)

	g.plugins.EmitBucketProcessed(ctx, s)
	g.checkpoint(ctx, receiver)

	g.logger.Debug("payments processed",
		"receiver", receiver,
		"buckets", len(s.Buckets),
		"total", s.Total,
		"net", s.Net,
		"fee", s.Fee,
	)

	return s, nil
}
