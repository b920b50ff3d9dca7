// Package datastore persists escrow checkpoints in any go-datastore
// implementation (leveldb, badger, flatfs or the in-memory map store).
//
// Layout under the wrapped namespace:
//
//	/meta/version
//	/fee/settings
//	/accounts/h<hex receiver>
//	/balances/h<hex holder>
//	/payouts/<payout id>
//	/events/<event id>
package datastore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"

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

const schemaVersion = "1"

var (
	versionKey  = ds.NewKey("/meta/version")
	settingsKey = ds.NewKey("/fee/settings")
)

// Store implements store.Store on a go-datastore.
type Store struct {
	lk sync.Mutex
	ds ds.Batching
}

// New wraps d under the /escrow namespace.
func New(d ds.Batching) *Store {
	return &Store{ds: namespace.Wrap(d, ds.NewKey("/escrow"))}
}

func holderKey(prefix string, holder types.Address) ds.Key {
	return ds.NewKey(prefix).ChildString("h" + hex.EncodeToString([]byte(holder)))
}

func (s *Store) put(ctx context.Context, k ds.Key, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.ds.Put(ctx, k, b)
}

func (s *Store) get(ctx context.Context, k ds.Key, v any, notFound error) error {
	b, err := s.ds.Get(ctx, k)
	if errors.Is(err, ds.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// scan decodes every value under prefix.
func scan[T any](ctx context.Context, d ds.Datastore, prefix string) ([]*T, error) {
	res, err := d.Query(ctx, dsq.Query{Prefix: prefix, Orders: []dsq.Order{dsq.OrderByKey{}}})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(entries))
	for _, e := range entries {
		v := new(T)
		if err := json.Unmarshal(e.Value, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func (s *Store) SaveAccount(ctx context.Context, st *ledger.AccountState) error {
	if err := s.put(ctx, holderKey("/accounts", st.Receiver), st); err != nil {
		return fmt.Errorf("escrow/datastore: save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, receiver types.Address) (*ledger.AccountState, error) {
	var st ledger.AccountState
	if err := s.get(ctx, holderKey("/accounts", receiver), &st, escrow.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*ledger.AccountState, error) {
	out, err := scan[ledger.AccountState](ctx, s.ds, "/accounts")
	if err != nil {
		return nil, fmt.Errorf("escrow/datastore: list accounts: %w", err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

func (s *Store) SaveBalances(ctx context.Context, balances []*payout.Balance) error {
	b, err := s.ds.Batch(ctx)
	if err != nil {
		return fmt.Errorf("escrow/datastore: save balances: %w", err)
	}
	for _, bal := range balances {
		k := holderKey("/balances", bal.Holder)
		if bal.Amount.IsZero() {
			if err := b.Delete(ctx, k); err != nil {
				return fmt.Errorf("escrow/datastore: save balances: %w", err)
			}
			continue
		}
		raw, err := json.Marshal(bal)
		if err != nil {
			return err
		}
		if err := b.Put(ctx, k, raw); err != nil {
			return fmt.Errorf("escrow/datastore: save balances: %w", err)
		}
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/datastore: save balances: %w", err)
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context) ([]*payout.Balance, error) {
	out, err := scan[payout.Balance](ctx, s.ds, "/balances")
	if err != nil {
		return nil, fmt.Errorf("escrow/datastore: list balances: %w", err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Fee settings
// ──────────────────────────────────────────────────

func (s *Store) SaveFeeSettings(ctx context.Context, fs *fee.Settings) error {
	if err := s.put(ctx, settingsKey, fs); err != nil {
		return fmt.Errorf("escrow/datastore: save fee settings: %w", err)
	}
	return nil
}

func (s *Store) GetFeeSettings(ctx context.Context) (*fee.Settings, error) {
	var fs fee.Settings
	if err := s.get(ctx, settingsKey, &fs, escrow.ErrFeeSettingsNotFound); err != nil {
		return nil, err
	}
	return &fs, nil
}

// ──────────────────────────────────────────────────
// Payouts
// ──────────────────────────────────────────────────

func payoutKey(pid id.PayoutID) ds.Key {
	return ds.NewKey("/payouts").ChildString(pid.String())
}

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	k := payoutKey(p.ID)
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return fmt.Errorf("escrow/datastore: create payout: %w", err)
	}
	if has {
		return escrow.ErrAlreadyExists
	}
	if err := s.put(ctx, k, p); err != nil {
		return fmt.Errorf("escrow/datastore: create payout: %w", err)
	}
	return nil
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	var p payout.Payout
	if err := s.get(ctx, payoutKey(payoutID), &p, escrow.ErrPayoutNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	all, err := scan[payout.Payout](ctx, s.ds, "/payouts")
	if err != nil {
		return nil, fmt.Errorf("escrow/datastore: list payouts: %w", err)
	}

	var out []*payout.Payout
	for _, p := range all {
		if p.Match(opts) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

func (s *Store) AppendEvents(ctx context.Context, events []*event.Event) error {
	b, err := s.ds.Batch(ctx)
	if err != nil {
		return fmt.Errorf("escrow/datastore: append events: %w", err)
	}
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(ctx, ds.NewKey("/events").ChildString(e.ID.String()), raw); err != nil {
			return fmt.Errorf("escrow/datastore: append events: %w", err)
		}
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("escrow/datastore: append events: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	all, err := scan[event.Event](ctx, s.ds, "/events")
	if err != nil {
		return nil, fmt.Errorf("escrow/datastore: list events: %w", err)
	}

	var out []*event.Event
	for _, e := range all {
		if e.Match(opts) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Core
// ──────────────────────────────────────────────────

// Migrate stamps the schema version. There is nothing to transform yet.
func (s *Store) Migrate(ctx context.Context) error {
	b, err := s.ds.Get(ctx, versionKey)
	switch {
	case errors.Is(err, ds.ErrNotFound):
		if err := s.ds.Put(ctx, versionKey, []byte(schemaVersion)); err != nil {
			return fmt.Errorf("%w: %w", escrow.ErrMigrationFailed, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", escrow.ErrMigrationFailed, err)
	case string(b) != schemaVersion:
		return fmt.Errorf("%w: unknown schema version %q", escrow.ErrMigrationFailed, b)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.ds.Has(ctx, versionKey)
	return err
}

func (s *Store) Close() error {
	return s.ds.Close()
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
