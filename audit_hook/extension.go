// Package audithook bridges escrow gateway events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnPaymentPlaced   = (*Extension)(nil)
	_ plugin.OnPaymentRefunded = (*Extension)(nil)
	_ plugin.OnPaymentReviewed = (*Extension)(nil)
	_ plugin.OnBucketFrozen    = (*Extension)(nil)
	_ plugin.OnBucketApproved  = (*Extension)(nil)
	_ plugin.OnBucketProcessed = (*Extension)(nil)
	_ plugin.OnPayoutReleased  = (*Extension)(nil)
	_ plugin.OnPayoutFailed    = (*Extension)(nil)
	_ plugin.OnFeeChanged      = (*Extension)(nil)
	_ plugin.OnAccessDenied    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges escrow events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentPlaced implements plugin.OnPaymentPlaced.
func (e *Extension) OnPaymentPlaced(ctx context.Context, pl *ledger.Placement) error {
	action := ActionPaymentPlaced
	if pl.Merged {
		action = ActionPaymentMerged
	}
	p := pl.Payment
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourcePayment, paymentID(p.ID), CategoryPayment, nil,
		"receiver", p.Receiver.String(),
		"payer", p.Payer.String(),
		"external_id", p.ExternalID,
		"added", uint64(pl.Added),
		"amount", uint64(p.Amount),
	)
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (e *Extension) OnPaymentRefunded(ctx context.Context, r *ledger.Refund) error {
	return e.record(ctx, ActionPaymentRefunded, SeverityWarning, OutcomeSuccess,
		ResourcePayment, paymentID(r.Before.ID), CategoryPayment, nil,
		"receiver", r.Before.Receiver.String(),
		"payer", r.Payer().String(),
		"refunded", uint64(r.Amount),
		"remaining", uint64(r.After.Amount),
		"cleared", r.Cleared,
	)
}

// OnPaymentReviewed implements plugin.OnPaymentReviewed.
func (e *Extension) OnPaymentReviewed(ctx context.Context, r *ledger.Review) error {
	return e.record(ctx, ActionPaymentReviewed, SeverityInfo, OutcomeSuccess,
		ResourcePayment, paymentID(r.Payment.ID), CategoryPayment, nil,
		"receiver", r.Payment.Receiver.String(),
		"from", r.From.String(),
		"to", r.To.String(),
	)
}

// ──────────────────────────────────────────────────
// Bucket hooks
// ──────────────────────────────────────────────────

// OnBucketFrozen implements plugin.OnBucketFrozen.
func (e *Extension) OnBucketFrozen(ctx context.Context, b *ledger.Bucket) error {
	return e.record(ctx, ActionBucketFrozen, SeverityInfo, OutcomeSuccess,
		ResourceBucket, b.ID.String(), CategorySettlement, nil,
		"receiver", b.Receiver.String(),
		"total", uint64(b.Total),
		"payments", len(b.Payments),
	)
}

// OnBucketApproved implements plugin.OnBucketApproved.
func (e *Extension) OnBucketApproved(ctx context.Context, b *ledger.Bucket) error {
	return e.record(ctx, ActionBucketApproved, SeverityInfo, OutcomeSuccess,
		ResourceBucket, b.ID.String(), CategorySettlement, nil,
		"receiver", b.Receiver.String(),
		"total", uint64(b.Total),
	)
}

// OnBucketProcessed implements plugin.OnBucketProcessed. One audit event is
// recorded per settled bucket.
func (e *Extension) OnBucketProcessed(ctx context.Context, s *ledger.Settlement) error {
	for _, bs := range s.Buckets {
		if err := e.record(ctx, ActionBucketProcessed, SeverityInfo, OutcomeSuccess,
			ResourceBucket, bs.BucketID.String(), CategorySettlement, nil,
			"receiver", s.Receiver.String(),
			"vault", s.Vault.String(),
			"fee_bps", s.FeeBps,
			"total", uint64(bs.Total),
			"net", uint64(bs.Net),
			"fee", uint64(bs.Fee),
		); err != nil {
			return err
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnPayoutReleased implements plugin.OnPayoutReleased.
func (e *Extension) OnPayoutReleased(ctx context.Context, p *payout.Payout) error {
	return e.record(ctx, ActionPayoutReleased, SeverityInfo, OutcomeSuccess,
		ResourcePayout, p.ID.String(), CategoryPayout, nil,
		"holder", p.Holder.String(),
		"kind", string(p.Kind),
		"amount", uint64(p.Amount),
		"rail", p.Rail,
	)
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (e *Extension) OnPayoutFailed(ctx context.Context, p *payout.Payout, err error) error {
	return e.record(ctx, ActionPayoutFailed, SeverityCritical, OutcomeFailure,
		ResourcePayout, p.ID.String(), CategoryPayout, err,
		"holder", p.Holder.String(),
		"kind", string(p.Kind),
		"amount", uint64(p.Amount),
		"rail", p.Rail,
	)
}

// ──────────────────────────────────────────────────
// Configuration and access hooks
// ──────────────────────────────────────────────────

// OnFeeChanged implements plugin.OnFeeChanged.
func (e *Extension) OnFeeChanged(ctx context.Context, before, after fee.Settings) error {
	return e.record(ctx, ActionFeeChanged, SeverityWarning, OutcomeSuccess,
		ResourceFee, "", CategoryConfig, nil,
		"old_bps", before.Bps,
		"new_bps", after.Bps,
		"old_vault", before.Vault.String(),
		"new_vault", after.Vault.String(),
	)
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (e *Extension) OnAccessDenied(ctx context.Context, role access.Role, caller types.Address) error {
	return e.record(ctx, ActionAccessDenied, SeverityWarning, OutcomeFailure,
		ResourceRole, string(role), CategoryAccess, nil,
		"caller", caller.String(),
		"role", string(role),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func paymentID(pid uint64) string { return strconv.FormatUint(pid, 10) }

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
