package store

import (
	"context"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
	"github.com/xraph/escrow/types"
)

// Store persists checkpoints of the escrow ledger together with payout
// receipts and the event journal. The in-memory ledger stays authoritative
// while the gateway runs; the store is read back on start.
type Store interface {
	// Account checkpoints
	SaveAccount(ctx context.Context, st *ledger.AccountState) error
	GetAccount(ctx context.Context, receiver types.Address) (*ledger.AccountState, error)
	ListAccounts(ctx context.Context) ([]*ledger.AccountState, error)

	// Payable balances. A zero amount removes the holder.
	SaveBalances(ctx context.Context, balances []*payout.Balance) error
	ListBalances(ctx context.Context) ([]*payout.Balance, error)

	// Fee configuration
	SaveFeeSettings(ctx context.Context, s *fee.Settings) error
	GetFeeSettings(ctx context.Context) (*fee.Settings, error)

	// Payout receipts
	payout.Store

	// Event journal
	event.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
