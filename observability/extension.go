// Package observability provides a metrics extension for the escrow gateway
// that records lifecycle counts and amounts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnPaymentPlaced   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRefunded = (*MetricsExtension)(nil)
	_ plugin.OnPaymentReviewed = (*MetricsExtension)(nil)
	_ plugin.OnBucketFrozen    = (*MetricsExtension)(nil)
	_ plugin.OnBucketApproved  = (*MetricsExtension)(nil)
	_ plugin.OnBucketProcessed = (*MetricsExtension)(nil)
	_ plugin.OnPayoutReleased  = (*MetricsExtension)(nil)
	_ plugin.OnPayoutFailed    = (*MetricsExtension)(nil)
	_ plugin.OnFeeChanged      = (*MetricsExtension)(nil)
	_ plugin.OnAccessDenied    = (*MetricsExtension)(nil)
	_ plugin.OnEventsFlushed   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records gateway-wide lifecycle metrics.
// Register it as an escrow plugin to track payment flow.
type MetricsExtension struct {
	factory MetricFactory

	// Payment metrics
	PaymentPlaced   Counter
	PaymentMerged   Counter
	PaymentAmount   Histogram
	PaymentRefunded Counter
	RefundAmount    Histogram
	PaymentReviewed Counter

	// Bucket metrics
	BucketFrozen    Counter
	BucketApproved  Counter
	BucketProcessed Counter
	SettledVolume   Counter
	FeeCollected    Counter

	// Payout metrics
	PayoutReleased Counter
	PayoutFailed   Counter
	PayoutAmount   Histogram

	// Admin metrics
	FeeChanged   Counter
	AccessDenied Counter

	// Journal metrics
	JournalFlushed      Counter
	JournalFlushLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PaymentPlaced:   factory.Counter("escrow.payment.placed"),
		PaymentMerged:   factory.Counter("escrow.payment.merged"),
		PaymentAmount:   factory.Histogram("escrow.payment.amount"),
		PaymentRefunded: factory.Counter("escrow.payment.refunded"),
		RefundAmount:    factory.Histogram("escrow.payment.refund_amount"),
		PaymentReviewed: factory.Counter("escrow.payment.reviewed"),

		BucketFrozen:    factory.Counter("escrow.bucket.frozen"),
		BucketApproved:  factory.Counter("escrow.bucket.approved"),
		BucketProcessed: factory.Counter("escrow.bucket.processed"),
		SettledVolume:   factory.Counter("escrow.settlement.volume"),
		FeeCollected:    factory.Counter("escrow.fee.collected"),

		PayoutReleased: factory.Counter("escrow.payout.released"),
		PayoutFailed:   factory.Counter("escrow.payout.failed"),
		PayoutAmount:   factory.Histogram("escrow.payout.amount"),

		FeeChanged:   factory.Counter("escrow.fee.changed"),
		AccessDenied: factory.Counter("escrow.access.denied"),

		JournalFlushed:      factory.Counter("escrow.journal.flushed"),
		JournalFlushLatency: factory.Histogram("escrow.journal.flush.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentPlaced implements plugin.OnPaymentPlaced.
func (m *MetricsExtension) OnPaymentPlaced(_ context.Context, pl *ledger.Placement) error {
	if pl.Merged {
		m.PaymentMerged.Inc()
	} else {
		m.PaymentPlaced.Inc()
	}
	m.PaymentAmount.Observe(float64(pl.Added))
	return nil
}

// OnPaymentRefunded implements plugin.OnPaymentRefunded.
func (m *MetricsExtension) OnPaymentRefunded(_ context.Context, r *ledger.Refund) error {
	m.PaymentRefunded.Inc()
	m.RefundAmount.Observe(float64(r.Amount))
	return nil
}

// OnPaymentReviewed implements plugin.OnPaymentReviewed.
func (m *MetricsExtension) OnPaymentReviewed(_ context.Context, _ *ledger.Review) error {
	m.PaymentReviewed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Bucket hooks
// ──────────────────────────────────────────────────

// OnBucketFrozen implements plugin.OnBucketFrozen.
func (m *MetricsExtension) OnBucketFrozen(_ context.Context, _ *ledger.Bucket) error {
	m.BucketFrozen.Inc()
	return nil
}

// OnBucketApproved implements plugin.OnBucketApproved.
func (m *MetricsExtension) OnBucketApproved(_ context.Context, _ *ledger.Bucket) error {
	m.BucketApproved.Inc()
	return nil
}

// OnBucketProcessed implements plugin.OnBucketProcessed.
func (m *MetricsExtension) OnBucketProcessed(_ context.Context, s *ledger.Settlement) error {
	m.BucketProcessed.Add(float64(len(s.Buckets)))
	m.SettledVolume.Add(float64(s.Total))
	m.FeeCollected.Add(float64(s.Fee))
	return nil
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

// OnPayoutReleased implements plugin.OnPayoutReleased.
func (m *MetricsExtension) OnPayoutReleased(_ context.Context, p *payout.Payout) error {
	m.PayoutReleased.Inc()
	m.PayoutAmount.Observe(float64(p.Amount))
	return nil
}

// OnPayoutFailed implements plugin.OnPayoutFailed.
func (m *MetricsExtension) OnPayoutFailed(_ context.Context, _ *payout.Payout, _ error) error {
	m.PayoutFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Admin and journal hooks
// ──────────────────────────────────────────────────

// OnFeeChanged implements plugin.OnFeeChanged.
func (m *MetricsExtension) OnFeeChanged(_ context.Context, _, _ fee.Settings) error {
	m.FeeChanged.Inc()
	return nil
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (m *MetricsExtension) OnAccessDenied(_ context.Context, _ access.Role, _ types.Address) error {
	m.AccessDenied.Inc()
	return nil
}

// OnEventsFlushed implements plugin.OnEventsFlushed.
func (m *MetricsExtension) OnEventsFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.JournalFlushed.Add(float64(count))
	m.JournalFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
