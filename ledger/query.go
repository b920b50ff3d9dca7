package ledger

import (
	"fmt"
	"sort"

	"github.com/xraph/escrow/types"
)

// Payment returns a copy of a live payment.
func (b *Book) Payment(paymentID uint64) (Payment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p := b.payments[paymentID]
	if p == nil {
		return Payment{}, fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
	}
	return *p, nil
}

// PaymentByExternal returns the latest payment recorded under an external ID.
func (b *Book) PaymentByExternal(ext uint64) (Payment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p := b.payments[b.external[ext]]
	if p == nil {
		return Payment{}, fmt.Errorf("%w: external id %d", ErrPaymentNotFound, ext)
	}
	return *p, nil
}

// PendingPayments returns the payments in the receiver's pending bucket in
// arrival order.
func (b *Book) PendingPayments(receiver types.Address) []Payment {
	return b.PaymentsInState(receiver, StatePending)
}

// PaymentsInState returns the receiver's live payments in state s.
func (b *Book) PaymentsInState(receiver types.Address, s State) []Payment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return nil
	}
	var out []Payment
	for _, bk := range acct.buckets {
		if bk.State != s {
			continue
		}
		for _, pid := range bk.Payments {
			if p := b.payments[pid]; p != nil {
				out = append(out, *p)
			}
		}
	}
	return out
}

// TotalInState sums the totals of the receiver's buckets in state s.
func (b *Book) TotalInState(receiver types.Address, s State) types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total types.Amount
	if acct := b.accounts[receiver]; acct != nil {
		for _, bk := range acct.buckets {
			if bk.State == s {
				total += bk.Total
			}
		}
	}
	return total
}

// BucketCountWithState counts the receiver's buckets in state s, including
// historical PROCESSED buckets.
func (b *Book) BucketCountWithState(receiver types.Address, s State) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	if acct := b.accounts[receiver]; acct != nil {
		for _, bk := range acct.buckets {
			if bk.State == s {
				n++
			}
		}
	}
	return n
}

// AmountApproved is the total of the receiver's approved, unprocessed buckets.
func (b *Book) AmountApproved(receiver types.Address) types.Amount {
	return b.TotalInState(receiver, StateApproved)
}

// Payable returns the amount awaiting payout to holder.
func (b *Book) Payable(holder types.Address) types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.payable[holder]
}

// UndistributedFees returns fees settled while no vault was configured.
func (b *Book) UndistributedFees() types.Amount {
	return b.Payable(types.ZeroAddress)
}

// Buckets returns copies of the receiver's buckets, oldest first.
func (b *Book) Buckets(receiver types.Address) []Bucket {
	b.mu.RLock()
	defer b.mu.RUnlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return nil
	}
	out := make([]Bucket, len(acct.buckets))
	for i, bk := range acct.buckets {
		out[i] = bk.clone()
	}
	return out
}

// Receivers lists every receiver with an account, sorted.
func (b *Book) Receivers() []types.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Address, 0, len(b.accounts))
	for r := range b.accounts {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Liabilities is everything the custody must cover: unsettled bucket
// totals plus payable balances.
func (b *Book) Liabilities() types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total types.Amount
	for _, acct := range b.accounts {
		for _, bk := range acct.buckets {
			if bk.State != StateProcessed {
				total += bk.Total
			}
		}
	}
	for _, amt := range b.payable {
		total += amt
	}
	return total
}
