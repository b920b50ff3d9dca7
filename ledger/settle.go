package ledger

import (
	"fmt"

	"github.com/xraph/escrow/types"
)

// Process settles every APPROVED bucket of receiver. For each bucket the
// fee is floor(total*bps/10000) and the receiver keeps the residual. Net
// proceeds are credited to the receiver's payable balance and fees to
// vault's; with no vault configured fees accrue to the undistributed pool.
// Settled payment records are cleared.
func (b *Book) Process(receiver types.Address, bps uint16, vault types.Address) (*Settlement, error) {
	if bps > types.BpsDenominator {
		return nil, fmt.Errorf("ledger: fee bps %d out of range", bps)
	}
	if vault.IsZero() {
		vault = types.ZeroAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return nil, ErrNoApprovedBucket
	}

	st := &Settlement{Receiver: receiver, Vault: vault, FeeBps: bps}
	var approved []*Bucket
	for _, bk := range acct.buckets {
		if bk.State != StateApproved {
			continue
		}
		net, fee := bk.Total.SplitBps(bps)
		total, ok := st.Total.Add(bk.Total)
		if !ok {
			return nil, ErrOverflow
		}
		st.Total = total
		st.Net += net
		st.Fee += fee
		st.Buckets = append(st.Buckets, BucketSettlement{BucketID: bk.ID, Total: bk.Total, Net: net, Fee: fee})
		approved = append(approved, bk)
	}
	if len(approved) == 0 {
		return nil, ErrNoApprovedBucket
	}

	credits := map[types.Address]types.Amount{}
	if err := addCredit(credits, b.payable, receiver, st.Net); err != nil {
		return nil, err
	}
	if err := addCredit(credits, b.payable, vault, st.Fee); err != nil {
		return nil, err
	}

	for _, bk := range approved {
		bk.State = StateProcessed
		bk.Touch()
		for _, pid := range bk.Payments {
			b.clearPayment(pid)
		}
	}
	for holder, amt := range credits {
		b.setPayable(holder, amt)
	}
	return st, nil
}

// addCredit stages base[holder]+amount into staged, checking for overflow.
func addCredit(staged, base map[types.Address]types.Amount, holder types.Address, amount types.Amount) error {
	cur, ok := staged[holder]
	if !ok {
		cur = base[holder]
	}
	next, ok := cur.Add(amount)
	if !ok {
		return ErrOverflow
	}
	staged[holder] = next
	return nil
}

func (b *Book) setPayable(holder types.Address, amount types.Amount) {
	if amount.IsZero() {
		delete(b.payable, holder)
		return
	}
	b.payable[holder] = amount
}

func (b *Book) clearPayment(pid uint64) (indexed bool) {
	p := b.payments[pid]
	if p == nil {
		return false
	}
	delete(b.payments, pid)
	if b.external[p.ExternalID] == pid {
		delete(b.external, p.ExternalID)
		return true
	}
	return false
}

// Refund returns amount of a payment to its payer. Only PENDING and REVIEW
// payments are refundable. A refund that empties the payment clears it.
func (b *Book) Refund(receiver types.Address, paymentID uint64, amount types.Amount) (*Refund, error) {
	if amount.IsZero() {
		return nil, ErrZeroValue
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.payments[paymentID]
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
	}
	if p.Receiver != receiver {
		return nil, fmt.Errorf("%w: payment %d is recorded for %s", ErrReceiverMismatch, paymentID, p.Receiver)
	}
	if !p.State.Refundable() {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrPaymentLocked, paymentID, p.State)
	}
	if amount > p.Amount {
		return nil, fmt.Errorf("%w: requested %s, live %s", ErrRefundExceedsAmount, amount, p.Amount)
	}
	refunded, ok := p.RefundAmount.Add(amount)
	if !ok {
		return nil, ErrOverflow
	}

	bk := b.accounts[receiver].bucket(p.Bucket)
	r := &Refund{Before: *p, Amount: amount, slot: -1}

	p.Amount -= amount
	p.RefundAmount = refunded
	bk.Total -= amount
	bk.Touch()

	if p.Amount.IsZero() {
		for i, v := range bk.Payments {
			if v == p.ID {
				r.slot = i
				break
			}
		}
		bk.removePayment(p.ID)
		r.external = b.clearPayment(p.ID)
		r.Cleared = true
	}
	r.After = *p
	return r, nil
}

// UndoRefund reverses a refund whose transfer to the payer failed.
func (b *Book) UndoRefund(r *Refund) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[r.Before.Receiver]
	if acct == nil {
		return
	}
	bk := acct.bucket(r.Before.Bucket)
	if bk == nil {
		return
	}
	bk.Total += r.Amount

	if !r.Cleared {
		if p := b.payments[r.Before.ID]; p != nil {
			*p = r.Before
		}
		return
	}

	p := r.Before
	b.payments[p.ID] = &p
	if r.external {
		b.external[p.ExternalID] = p.ID
	}
	slot := r.slot
	if slot < 0 || slot > len(bk.Payments) {
		slot = len(bk.Payments)
	}
	bk.Payments = append(bk.Payments, 0)
	copy(bk.Payments[slot+1:], bk.Payments[slot:])
	bk.Payments[slot] = p.ID
}

// DebitPayable zeroes holder's payable balance and returns what it held.
// Callers transfer the returned amount and call CreditPayable if the
// transfer fails.
func (b *Book) DebitPayable(holder types.Address) (types.Amount, error) {
	if holder.IsZero() {
		return 0, ErrZeroAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	amt := b.payable[holder]
	if amt.IsZero() {
		return 0, fmt.Errorf("%w: %s", ErrNothingToPayOut, holder)
	}
	delete(b.payable, holder)
	return amt, nil
}

// CreditPayable adds amount to holder's payable balance.
func (b *Book) CreditPayable(holder types.Address, amount types.Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, ok := b.payable[holder].Add(amount)
	if !ok {
		return ErrOverflow
	}
	b.setPayable(holder, next)
	return nil
}

// SweepFees moves fees that accrued while no vault was configured into
// vault's payable balance and returns the amount moved.
func (b *Book) SweepFees(vault types.Address) (types.Amount, error) {
	if vault.IsZero() {
		return 0, ErrZeroAddress
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pool := b.payable[types.ZeroAddress]
	if pool.IsZero() {
		return 0, nil
	}
	next, ok := b.payable[vault].Add(pool)
	if !ok {
		return 0, ErrOverflow
	}
	delete(b.payable, types.ZeroAddress)
	b.setPayable(vault, next)
	return pool, nil
}
