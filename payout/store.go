package payout

import (
	"context"

	"github.com/xraph/escrow/id"
)

type Store interface {
	CreatePayout(ctx context.Context, p *Payout) error
	GetPayout(ctx context.Context, payoutID id.PayoutID) (*Payout, error)
	ListPayouts(ctx context.Context, opts ListOpts) ([]*Payout, error)
}

type ListOpts struct {
	Holder string
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}

// Match reports whether p passes the filter in opts.
func (p *Payout) Match(opts ListOpts) bool {
	if opts.Holder != "" && string(p.Holder) != opts.Holder {
		return false
	}
	if opts.Kind != "" && p.Kind != opts.Kind {
		return false
	}
	if opts.Status != "" && p.Status != opts.Status {
		return false
	}
	return true
}
