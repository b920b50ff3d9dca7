// Package ledger is the bucketed payment ledger: it tracks every payment
// owed to a receiver from placement to payout and owns all fund totals.
//
// Each receiver has an ordered sequence of buckets. Read left to right the
// layout is
//
//	[REVIEW] [PROCESSED...] [APPROVED...] [READY] [PENDING]
//
// with at most one REVIEW, READY and PENDING bucket. New payments land in
// PENDING; Freeze turns it READY and opens a fresh PENDING; Approve turns
// READY into APPROVED; Process settles every APPROVED bucket into payable
// balances for the receiver and the fee vault.
//
// Every operation validates completely before it mutates anything, so a
// returned error always means the book is unchanged.
package ledger

import (
	"fmt"
	"sync"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// MergePolicy decides how a placement that reuses a live external ID with
// a different payer is handled.
type MergePolicy int

const (
	// MergeAccumulate adds the amount to the existing entry, which keeps
	// its original payer.
	MergeAccumulate MergePolicy = iota
	// MergeReject fails the placement with ErrPayerMismatch.
	MergeReject
)

func (p MergePolicy) String() string {
	if p == MergeReject {
		return "reject"
	}
	return "accumulate"
}

// ParseMergePolicy maps "accumulate" or "reject" to a MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch s {
	case "", "accumulate":
		return MergeAccumulate, nil
	case "reject":
		return MergeReject, nil
	default:
		return MergeAccumulate, fmt.Errorf("ledger: unknown merge policy %q", s)
	}
}

type account struct {
	receiver types.Address
	buckets  []*Bucket
}

// find returns the first bucket in state s.
func (a *account) find(s State) *Bucket {
	for _, b := range a.buckets {
		if b.State == s {
			return b
		}
	}
	return nil
}

func (a *account) bucket(bid id.BucketID) *Bucket {
	for _, b := range a.buckets {
		if b.ID == bid {
			return b
		}
	}
	return nil
}

// Book is the payment ledger. It is safe for concurrent use; mutations are
// serialized.
type Book struct {
	mu       sync.RWMutex
	nextID   uint64
	payments map[uint64]*Payment
	external map[uint64]uint64 // external id -> latest payment id
	accounts map[types.Address]*account
	payable  map[types.Address]types.Amount
	policy   MergePolicy
}

// Option configures a Book.
type Option func(*Book)

// WithMergePolicy sets how payer mismatches on merge are handled.
func WithMergePolicy(p MergePolicy) Option {
	return func(b *Book) { b.policy = p }
}

// New creates an empty Book.
func New(opts ...Option) *Book {
	b := &Book{
		payments: make(map[uint64]*Payment),
		external: make(map[uint64]uint64),
		accounts: make(map[types.Address]*account),
		payable:  make(map[types.Address]types.Amount),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MergePolicy returns the configured merge policy.
func (b *Book) MergePolicy() MergePolicy { return b.policy }

func newBucket(receiver types.Address, s State) *Bucket {
	return &Bucket{
		ID:       id.NewBucketID(),
		Receiver: receiver,
		State:    s,
		Entity:   types.NewEntity(),
	}
}

// live returns the mutable payment currently registered under ext.
func (b *Book) live(ext uint64) *Payment {
	pid, ok := b.external[ext]
	if !ok {
		return nil
	}
	p := b.payments[pid]
	if p == nil || !p.State.Mutable() {
		return nil
	}
	return p
}

// CheckPayment reports whether AddPayment would accept the placement,
// without changing the book. Callers that move funds before recording a
// placement check first so a rejected placement never touches the rail.
func (b *Book) CheckPayment(receiver types.Address, in PaymentInput) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, _, err := b.checkPayment(receiver, in)
	return err
}

// checkPayment returns the live entry the placement merges into, or the
// receiver's pending bucket (nil when one must be opened).
func (b *Book) checkPayment(receiver types.Address, in PaymentInput) (*Payment, *Bucket, error) {
	if receiver.IsZero() || in.Payer.IsZero() {
		return nil, nil, ErrZeroAddress
	}
	if in.Amount.IsZero() {
		return nil, nil, ErrZeroValue
	}

	if p := b.live(in.ExternalID); p != nil {
		if p.Receiver != receiver {
			return nil, nil, fmt.Errorf("%w: payment %d is recorded for %s", ErrReceiverMismatch, in.ExternalID, p.Receiver)
		}
		if p.Payer != in.Payer && b.policy == MergeReject {
			return nil, nil, fmt.Errorf("%w: payment %d is funded by %s", ErrPayerMismatch, in.ExternalID, p.Payer)
		}
		bk := b.accounts[receiver].bucket(p.Bucket)
		if _, ok := p.Amount.Add(in.Amount); !ok {
			return nil, nil, ErrOverflow
		}
		if _, ok := bk.Total.Add(in.Amount); !ok {
			return nil, nil, ErrOverflow
		}
		return p, bk, nil
	}

	var pending *Bucket
	if acct := b.accounts[receiver]; acct != nil {
		pending = acct.find(StatePending)
	}
	if pending != nil {
		if _, ok := pending.Total.Add(in.Amount); !ok {
			return nil, nil, ErrOverflow
		}
	}
	return nil, pending, nil
}

// AddPayment credits a payment to receiver. A live entry with the same
// external ID absorbs the amount; otherwise a new entry is opened in the
// receiver's pending bucket.
func (b *Book) AddPayment(receiver types.Address, in PaymentInput) (*Placement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, bk, err := b.checkPayment(receiver, in)
	if err != nil {
		return nil, err
	}

	if p != nil {
		p.Amount += in.Amount
		bk.Total += in.Amount
		bk.Touch()
		return &Placement{Payment: *p, Merged: true, Added: in.Amount}, nil
	}

	pending := bk
	acct := b.accounts[receiver]
	if acct == nil {
		acct = &account{receiver: receiver}
		b.accounts[receiver] = acct
	}
	if pending == nil {
		pending = newBucket(receiver, StatePending)
		acct.buckets = append(acct.buckets, pending)
	}

	b.nextID++
	p = &Payment{
		ID:         b.nextID,
		ExternalID: in.ExternalID,
		Receiver:   receiver,
		Payer:      in.Payer,
		Amount:     in.Amount,
		State:      StatePending,
		Bucket:     pending.ID,
	}
	b.payments[p.ID] = p
	b.external[in.ExternalID] = p.ID
	pending.Payments = append(pending.Payments, p.ID)
	pending.Total += in.Amount
	pending.Touch()

	return &Placement{Payment: *p, Added: in.Amount}, nil
}

// Freeze moves the receiver's pending bucket to READY and opens a new
// pending bucket. Only one READY bucket may exist per receiver.
func (b *Book) Freeze(receiver types.Address) (Bucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return Bucket{}, ErrNoPendingBucket
	}
	if acct.find(StateReady) != nil {
		return Bucket{}, ErrReadyBucketExists
	}
	pending := acct.find(StatePending)
	if pending == nil {
		return Bucket{}, ErrNoPendingBucket
	}
	if len(pending.Payments) == 0 {
		return Bucket{}, ErrEmptyBucket
	}

	b.transition(pending, StateReady)
	acct.buckets = append(acct.buckets, newBucket(receiver, StatePending))
	return pending.clone(), nil
}

// Approve turns the receiver's READY bucket into an APPROVED one.
func (b *Book) Approve(receiver types.Address) (Bucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return Bucket{}, ErrNoReadyBucket
	}
	ready := acct.find(StateReady)
	if ready == nil {
		return Bucket{}, ErrNoReadyBucket
	}

	b.transition(ready, StateApproved)
	return ready.clone(), nil
}

// Review toggles a payment in or out of the receiver's REVIEW bucket.
// Pending and ready payments move into review; a payment leaving review
// lands in the current pending bucket.
func (b *Book) Review(paymentID uint64) (*Review, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.payments[paymentID]
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrPaymentNotFound, paymentID)
	}
	acct := b.accounts[p.Receiver]
	from := acct.bucket(p.Bucket)

	var target State
	switch p.State {
	case StatePending, StateReady:
		target = StateReview
	case StateReview:
		target = StatePending
	default:
		return nil, fmt.Errorf("%w: payment %d is %s", ErrPaymentLocked, p.ID, p.State)
	}

	dst := acct.find(target)
	if dst != nil {
		if _, ok := dst.Total.Add(p.Amount); !ok {
			return nil, ErrOverflow
		}
	} else {
		dst = newBucket(p.Receiver, target)
		if target == StateReview {
			acct.buckets = append([]*Bucket{dst}, acct.buckets...)
		} else {
			acct.buckets = append(acct.buckets, dst)
		}
	}

	fromState := p.State
	from.removePayment(p.ID)
	from.Total -= p.Amount
	from.Touch()
	dst.Payments = append(dst.Payments, p.ID)
	dst.Total += p.Amount
	dst.Touch()
	p.State = target
	p.Bucket = dst.ID

	return &Review{Payment: *p, From: fromState, To: target}, nil
}

func (b *Book) transition(bk *Bucket, s State) {
	bk.State = s
	bk.Touch()
	for _, pid := range bk.Payments {
		if p := b.payments[pid]; p != nil {
			p.State = s
		}
	}
}
