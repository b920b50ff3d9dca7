package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("escrow/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: escrow/postgres: %w", escrow.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Accounts ====================

func (s *Store) SaveAccount(ctx context.Context, st *ledger.AccountState) error {
	m, err := toAccountModel(st)
	if err != nil {
		return fmt.Errorf("escrow/postgres: save account: %w", err)
	}
	_, err = s.pg.NewInsert(m).
		OnConflict("(receiver) DO UPDATE").
		Set("sequence = EXCLUDED.sequence").
		Set("buckets = EXCLUDED.buckets").
		Set("payments = EXCLUDED.payments").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/postgres: save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, receiver types.Address) (*ledger.AccountState, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("receiver = $1", string(receiver)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) ListAccounts(ctx context.Context) ([]*ledger.AccountState, error) {
	var models []accountModel
	if err := s.pg.NewSelect(&models).OrderExpr("receiver ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*ledger.AccountState, len(models))
	for i := range models {
		st, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = st
	}
	return result, nil
}

// ==================== Balances ====================

func (s *Store) SaveBalances(ctx context.Context, balances []*payout.Balance) error {
	for _, b := range balances {
		if b.Amount.IsZero() {
			_, err := s.pg.NewDelete((*balanceModel)(nil)).
				Where("holder = $1", string(b.Holder)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("escrow/postgres: clear balance: %w", err)
			}
			continue
		}
		_, err := s.pg.NewInsert(toBalanceModel(b)).
			OnConflict("(holder) DO UPDATE").
			Set("amount = EXCLUDED.amount").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("escrow/postgres: save balance: %w", err)
		}
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context) ([]*payout.Balance, error) {
	var models []balanceModel
	if err := s.pg.NewSelect(&models).OrderExpr("holder ASC").Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payout.Balance, len(models))
	for i := range models {
		b, err := fromBalanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

// ==================== Fee settings ====================

func (s *Store) SaveFeeSettings(ctx context.Context, fs *fee.Settings) error {
	m := toFeeSettingsModel(fs)
	m.UpdatedAt = now()
	_, err := s.pg.NewInsert(m).
		OnConflict("(id) DO UPDATE").
		Set("fee_bps = EXCLUDED.fee_bps").
		Set("vault_address = EXCLUDED.vault_address").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetFeeSettings(ctx context.Context) (*fee.Settings, error) {
	m := new(feeSettingsModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", settingsRow).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrFeeSettingsNotFound
		}
		return nil, err
	}
	return fromFeeSettingsModel(m), nil
}

// ==================== Payouts ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	_, err := s.pg.NewInsert(toPayoutModel(p)).Exec(ctx)
	return err
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	m := new(payoutModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", payoutID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrPayoutNotFound
		}
		return nil, err
	}
	return fromPayoutModel(m)
}

func (s *Store) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	var models []payoutModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Holder != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("holder = $%d", argIdx), opts.Holder)
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*payout.Payout, len(models))
	for i := range models {
		p, err := fromPayoutModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Events ====================

func (s *Store) AppendEvents(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]eventModel, len(events))
	for i, e := range events {
		models[i] = *toEventModel(e)
	}
	_, err := s.pg.NewInsert(&models).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), string(opts.Type))
	}
	if opts.Receiver != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("receiver = $%d", argIdx), opts.Receiver)
	}
	if opts.PaymentID != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("payment_id = $%d", argIdx), int64(opts.PaymentID))
	}
	if !opts.Start.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("occurred_at >= $%d", argIdx), opts.Start)
	}
	if !opts.End.IsZero() {
		argIdx++
		q = q.Where(fmt.Sprintf("occurred_at < $%d", argIdx), opts.End)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("occurred_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
