// Package memory is a map-backed Store for tests and single-process use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts map[types.Address]*ledger.AccountState
	balances map[types.Address]*payout.Balance
	settings *fee.Settings
	payouts  map[string]*payout.Payout
	events   []*event.Event
	closed   bool
}

func New() *Store {
	return &Store{
		accounts: make(map[types.Address]*ledger.AccountState),
		balances: make(map[types.Address]*payout.Balance),
		payouts:  make(map[string]*payout.Payout),
	}
}

func cloneAccount(st *ledger.AccountState) *ledger.AccountState {
	cp := *st
	cp.Buckets = make([]ledger.Bucket, len(st.Buckets))
	for i, bk := range st.Buckets {
		cp.Buckets[i] = bk
		cp.Buckets[i].Payments = append([]uint64(nil), bk.Payments...)
	}
	cp.Payments = append([]ledger.Payment(nil), st.Payments...)
	return &cp
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) SaveAccount(_ context.Context, st *ledger.AccountState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	s.accounts[st.Receiver] = cloneAccount(st)
	return nil
}

func (s *Store) GetAccount(_ context.Context, receiver types.Address) (*ledger.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.accounts[receiver]; ok {
		return cloneAccount(st), nil
	}
	return nil, escrow.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context) ([]*ledger.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ledger.AccountState, 0, len(s.accounts))
	for _, st := range s.accounts {
		result = append(result, cloneAccount(st))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Receiver < result[j].Receiver })
	return result, nil
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

func (s *Store) SaveBalances(_ context.Context, balances []*payout.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	for _, b := range balances {
		if b.Amount.IsZero() {
			delete(s.balances, b.Holder)
			continue
		}
		cp := *b
		if cp.UpdatedAt.IsZero() {
			cp.UpdatedAt = time.Now().UTC()
		}
		s.balances[b.Holder] = &cp
	}
	return nil
}

func (s *Store) ListBalances(_ context.Context) ([]*payout.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payout.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		cp := *b
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Holder < result[j].Holder })
	return result, nil
}

// ──────────────────────────────────────────────────
// Fee settings
// ──────────────────────────────────────────────────

func (s *Store) SaveFeeSettings(_ context.Context, fs *fee.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *fs
	s.settings = &cp
	return nil
}

func (s *Store) GetFeeSettings(_ context.Context) (*fee.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, escrow.ErrFeeSettingsNotFound
	}
	cp := *s.settings
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Payouts
// ──────────────────────────────────────────────────

func (s *Store) CreatePayout(_ context.Context, p *payout.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payouts[p.ID.String()]; exists {
		return escrow.ErrAlreadyExists
	}
	cp := *p
	s.payouts[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPayout(_ context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payouts[payoutID.String()]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, escrow.ErrPayoutNotFound
}

func (s *Store) ListPayouts(_ context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*payout.Payout
	for _, p := range s.payouts {
		if p.Match(opts) {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

func (s *Store) AppendEvents(_ context.Context, events []*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	for _, e := range events {
		cp := *e
		s.events = append(s.events, &cp)
	}
	return nil
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*event.Event
	for _, e := range s.events {
		if e.Match(opts) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].OccurredAt.Before(result[j].OccurredAt) })
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
