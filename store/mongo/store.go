package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// Collection name constants.
const (
	colAccounts    = "escrow_accounts"
	colBalances    = "escrow_balances"
	colFeeSettings = "escrow_fee_settings"
	colPayouts     = "escrow_payouts"
	colEvents      = "escrow_events"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all escrow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: escrow/mongo: %s indexes: %w", escrow.ErrMigrationFailed, col, err)
		}
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
	m := toAccountModel(st)

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Receiver}).
		SetUpdate(bson.M{"$set": bson.M{
			"sequence":   m.Sequence,
			"buckets":    m.Buckets,
			"payments":   m.Payments,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: save account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, receiver types.Address) (*ledger.AccountState, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(receiver)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrAccountNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) ListAccounts(ctx context.Context) ([]*ledger.AccountState, error) {
	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: list accounts: %w", err)
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
			_, err := s.mdb.NewDelete((*balanceModel)(nil)).
				Filter(bson.M{"_id": string(b.Holder)}).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("escrow/mongo: clear balance: %w", err)
			}
			continue
		}
		m := &balanceModel{Holder: string(b.Holder), Amount: b.Amount.String(), UpdatedAt: now()}
		_, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.Holder}).
			SetUpdate(bson.M{"$set": bson.M{
				"amount":     m.Amount,
				"updated_at": m.UpdatedAt,
			}}).
			Upsert().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("escrow/mongo: save balance: %w", err)
		}
	}
	return nil
}

func (s *Store) ListBalances(ctx context.Context) ([]*payout.Balance, error) {
	var models []balanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: list balances: %w", err)
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
	m := &feeSettingsModel{
		ID:        settingsDoc,
		FeeBps:    int(fs.Bps),
		Vault:     string(fs.Vault),
		CreatedAt: fs.CreatedAt,
		UpdatedAt: now(),
	}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": settingsDoc}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"fee_bps":       m.FeeBps,
				"vault_address": m.Vault,
				"updated_at":    m.UpdatedAt,
			},
			"$setOnInsert": bson.M{"created_at": m.CreatedAt},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: save fee settings: %w", err)
	}
	return nil
}

func (s *Store) GetFeeSettings(ctx context.Context) (*fee.Settings, error) {
	var m feeSettingsModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": settingsDoc}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrFeeSettingsNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get fee settings: %w", err)
	}
	return fromFeeSettingsModel(&m), nil
}

// ==================== Payouts ====================

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	_, err := s.mdb.NewInsert(toPayoutModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return escrow.ErrAlreadyExists
		}
		return fmt.Errorf("escrow/mongo: create payout: %w", err)
	}
	return nil
}

func (s *Store) GetPayout(ctx context.Context, payoutID id.PayoutID) (*payout.Payout, error) {
	var m payoutModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payoutID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get payout: %w", err)
	}
	return fromPayoutModel(&m)
}

func (s *Store) ListPayouts(ctx context.Context, opts payout.ListOpts) ([]*payout.Payout, error) {
	var models []payoutModel

	filter := bson.M{}
	if opts.Holder != "" {
		filter["holder"] = opts.Holder
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("escrow/mongo: list payouts: %w", err)
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
	for _, e := range events {
		_, err := s.mdb.NewInsert(toEventModel(e)).Exec(ctx)
		if err != nil {
			// a retried flush may replay events already written
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("escrow/mongo: append event: %w", err)
		}
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	filter := bson.M{}
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}
	if opts.Receiver != "" {
		filter["receiver"] = opts.Receiver
	}
	if opts.PaymentID != 0 {
		filter["payment_id"] = int64(opts.PaymentID)
	}
	window := bson.M{}
	if !opts.Start.IsZero() {
		window["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		window["$lt"] = opts.End
	}
	if len(window) > 0 {
		filter["occurred_at"] = window
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("escrow/mongo: list events: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all escrow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPayouts: {
			{Keys: bson.D{{Key: "holder", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colEvents: {
			{Keys: bson.D{{Key: "occurred_at", Value: 1}}},
			{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "occurred_at", Value: 1}}},
			{Keys: bson.D{{Key: "type", Value: 1}, {Key: "occurred_at", Value: 1}}},
			{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
		colAccounts:    nil,
		colBalances:    nil,
		colFeeSettings: nil,
	}
}
