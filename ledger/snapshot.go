package ledger

import (
	"fmt"
	"time"

	"github.com/xraph/escrow/types"
)

// AccountState is the persisted form of one receiver's buckets and live
// payments.
type AccountState struct {
	Receiver  types.Address `json:"receiver"`
	Sequence  uint64        `json:"sequence"`
	Buckets   []Bucket      `json:"buckets"`
	Payments  []Payment     `json:"payments"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Snapshot captures the receiver's account. The second result is false
// when the receiver has no account.
func (b *Book) Snapshot(receiver types.Address) (*AccountState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	acct := b.accounts[receiver]
	if acct == nil {
		return nil, false
	}
	st := &AccountState{
		Receiver:  receiver,
		Sequence:  b.nextID,
		Buckets:   make([]Bucket, len(acct.buckets)),
		UpdatedAt: time.Now().UTC(),
	}
	for i, bk := range acct.buckets {
		st.Buckets[i] = bk.clone()
		for _, pid := range bk.Payments {
			if p := b.payments[pid]; p != nil {
				st.Payments = append(st.Payments, *p)
			}
		}
	}
	return st, true
}

// Balances returns a copy of every payable balance. The zero address key
// holds undistributed fees.
func (b *Book) Balances() map[types.Address]types.Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[types.Address]types.Amount, len(b.payable))
	for k, v := range b.payable {
		out[k] = v
	}
	return out
}

// Restore replaces the book's contents with persisted state and verifies
// the result. On error the book is left empty.
func (b *Book) Restore(accounts []*AccountState, balances map[types.Address]types.Amount) error {
	b.mu.Lock()
	b.nextID = 0
	b.payments = make(map[uint64]*Payment)
	b.external = make(map[uint64]uint64)
	b.accounts = make(map[types.Address]*account)
	b.payable = make(map[types.Address]types.Amount)

	for _, st := range accounts {
		if st.Sequence > b.nextID {
			b.nextID = st.Sequence
		}
		acct := &account{receiver: st.Receiver}
		for i := range st.Buckets {
			bk := st.Buckets[i].clone()
			acct.buckets = append(acct.buckets, &bk)
		}
		b.accounts[st.Receiver] = acct

		for i := range st.Payments {
			p := st.Payments[i]
			if _, dup := b.payments[p.ID]; dup {
				b.mu.Unlock()
				b.reset()
				return fmt.Errorf("%w: payment %d restored twice", ErrInvariantViolation, p.ID)
			}
			b.payments[p.ID] = &p
			if p.ID > b.nextID {
				b.nextID = p.ID
			}
			if cur, ok := b.external[p.ExternalID]; !ok || cur < p.ID {
				b.external[p.ExternalID] = p.ID
			}
		}
	}
	for k, v := range balances {
		if !v.IsZero() {
			b.payable[k] = v
		}
	}
	b.mu.Unlock()

	if err := b.Verify(); err != nil {
		b.reset()
		return err
	}
	return nil
}

func (b *Book) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID = 0
	b.payments = make(map[uint64]*Payment)
	b.external = make(map[uint64]uint64)
	b.accounts = make(map[types.Address]*account)
	b.payable = make(map[types.Address]types.Amount)
}
