package ledger

import (
	"errors"
	"fmt"
)

// Verify checks the structural invariants of every account:
//   - at most one PENDING, READY and REVIEW bucket per receiver
//   - bucket states never regress left to right
//   - each unsettled bucket's total equals the sum of its payments
//   - every live payment sits in exactly one bucket that matches its state
func (b *Book) Verify() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var errs []error
	seen := make(map[uint64]bool, len(b.payments))

	for receiver, acct := range b.accounts {
		counts := map[State]int{}
		last := -1
		for _, bk := range acct.buckets {
			counts[bk.State]++
			if r := bk.State.rank(); r < last {
				errs = append(errs, fmt.Errorf("%s: bucket %s (%s) out of order", receiver, bk.ID, bk.State))
			} else {
				last = r
			}
			if bk.Receiver != receiver {
				errs = append(errs, fmt.Errorf("%s: bucket %s belongs to %s", receiver, bk.ID, bk.Receiver))
			}

			if bk.State == StateProcessed {
				for _, pid := range bk.Payments {
					if b.payments[pid] != nil {
						errs = append(errs, fmt.Errorf("%s: payment %d still live in processed bucket %s", receiver, pid, bk.ID))
					}
				}
				continue
			}

			var sum uint64
			for _, pid := range bk.Payments {
				p := b.payments[pid]
				if p == nil {
					errs = append(errs, fmt.Errorf("%s: bucket %s references missing payment %d", receiver, bk.ID, pid))
					continue
				}
				if seen[pid] {
					errs = append(errs, fmt.Errorf("%s: payment %d held by more than one bucket", receiver, pid))
				}
				seen[pid] = true
				if p.Bucket != bk.ID || p.State != bk.State || p.Receiver != receiver {
					errs = append(errs, fmt.Errorf("%s: payment %d disagrees with bucket %s", receiver, pid, bk.ID))
				}
				if p.Amount.IsZero() {
					errs = append(errs, fmt.Errorf("%s: payment %d has zero amount", receiver, pid))
				}
				sum += uint64(p.Amount)
			}
			if sum != uint64(bk.Total) {
				errs = append(errs, fmt.Errorf("%s: bucket %s total %s, payments sum %d", receiver, bk.ID, bk.Total, sum))
			}
		}
		for _, s := range []State{StatePending, StateReady, StateReview} {
			if counts[s] > 1 {
				errs = append(errs, fmt.Errorf("%s: %d %s buckets", receiver, counts[s], s))
			}
		}
	}

	for pid := range b.payments {
		if !seen[pid] {
			errs = append(errs, fmt.Errorf("payment %d is not held by any bucket", pid))
		}
	}
	for ext, pid := range b.external {
		if b.payments[pid] == nil {
			errs = append(errs, fmt.Errorf("external id %d points at missing payment %d", ext, pid))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvariantViolation, errors.Join(errs...))
}
