// Package transport moves custodied currency between payers, the escrow
// custody account and payees.
//
// The ledger never touches funds directly. The gateway debits a payer into
// custody when a payment is placed and credits a payee out of custody when
// a payable balance or a refund is released.
package transport

import (
	"context"
	"errors"

	"github.com/xraph/escrow/types"
)

var (
	ErrInsufficientBalance   = errors.New("escrow: insufficient balance")
	ErrInsufficientAllowance = errors.New("escrow: insufficient allowance")
)

// Transport is a currency rail.
type Transport interface {
	// Name identifies the rail ("native", "token:<symbol>").
	Name() string

	// Custody is the account that holds escrowed funds.
	Custody() types.Address

	// Debit moves amount from a payer into custody.
	Debit(ctx context.Context, from types.Address, amount types.Amount) error

	// Credit moves amount from custody to a payee.
	Credit(ctx context.Context, to types.Address, amount types.Amount) error

	// BalanceOf reports what holder owns on this rail.
	BalanceOf(ctx context.Context, holder types.Address) (types.Amount, error)
}
