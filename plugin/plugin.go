// Package plugin lets extensions observe the escrow gateway. A plugin
// implements Plugin plus any of the hook interfaces below; the registry
// discovers them once at registration.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the gateway starts. g is the *escrow.Gateway.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, g interface{}) error
}

// OnShutdown is called when the gateway stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentPlaced is called after a payment is debited and recorded.
type OnPaymentPlaced interface {
	Plugin
	OnPaymentPlaced(ctx context.Context, p *ledger.Placement) error
}

// OnPaymentRefunded is called after a refund reaches the payer.
type OnPaymentRefunded interface {
	Plugin
	OnPaymentRefunded(ctx context.Context, r *ledger.Refund) error
}

// OnPaymentReviewed is called when a payment enters or leaves review.
type OnPaymentReviewed interface {
	Plugin
	OnPaymentReviewed(ctx context.Context, r *ledger.Review) error
}

// ──────────────────────────────────────────────────
// Bucket hooks
// ──────────────────────────────────────────────────

type OnBucketFrozen interface {
	Plugin
	OnBucketFrozen(ctx context.Context, b *ledger.Bucket) error
}

type OnBucketApproved interface {
	Plugin
	OnBucketApproved(ctx context.Context, b *ledger.Bucket) error
}

// OnBucketProcessed is called once per ProcessPayments call with every
// bucket it settled.
type OnBucketProcessed interface {
	Plugin
	OnBucketProcessed(ctx context.Context, s *ledger.Settlement) error
}

// ──────────────────────────────────────────────────
// Payout hooks
// ──────────────────────────────────────────────────

type OnPayoutReleased interface {
	Plugin
	OnPayoutReleased(ctx context.Context, p *payout.Payout) error
}

// OnPayoutFailed is called when a transfer out of custody fails. The
// amount has already been restored to the ledger.
type OnPayoutFailed interface {
	Plugin
	OnPayoutFailed(ctx context.Context, p *payout.Payout, err error) error
}

// ──────────────────────────────────────────────────
// Configuration and access hooks
// ──────────────────────────────────────────────────

type OnFeeChanged interface {
	Plugin
	OnFeeChanged(ctx context.Context, before, after fee.Settings) error
}

type OnAccessDenied interface {
	Plugin
	OnAccessDenied(ctx context.Context, role access.Role, caller types.Address) error
}

// ──────────────────────────────────────────────────
// Journal hooks
// ──────────────────────────────────────────────────

// OnEventsFlushed is called after the journal worker writes a batch.
type OnEventsFlushed interface {
	Plugin
	OnEventsFlushed(ctx context.Context, count int, elapsed time.Duration) error
}
