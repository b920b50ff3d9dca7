package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/escrow/types"
)

// balances is the in-memory account book shared by the native and token
// wallets.
type balances struct {
	mu      sync.Mutex
	custody types.Address
	held    map[types.Address]types.Amount
}

func newBalances(custody types.Address) balances {
	return balances{custody: custody, held: make(map[types.Address]types.Amount)}
}

func (b *balances) mint(to types.Address, amount types.Amount) error {
	next, ok := b.held[to].Add(amount)
	if !ok {
		return types.ErrAmountOverflow
	}
	b.held[to] = next
	return nil
}

func (b *balances) move(from, to types.Address, amount types.Amount) error {
	if from == to {
		return nil
	}
	src, ok := b.held[from].Sub(amount)
	if !ok {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, b.held[from], amount)
	}
	dst, ok := b.held[to].Add(amount)
	if !ok {
		return types.ErrAmountOverflow
	}
	b.held[from] = src
	b.held[to] = dst
	return nil
}

// NativeWallet is an in-memory rail for a chain's native value. Payers
// attach value to the call; the gateway checks the supplied value and the
// wallet moves exactly the accepted amount into custody.
type NativeWallet struct {
	balances
}

// NewNativeWallet creates a native rail whose escrow account is custody.
func NewNativeWallet(custody types.Address) *NativeWallet {
	return &NativeWallet{balances: newBalances(custody)}
}

// Name implements Transport.
func (w *NativeWallet) Name() string { return "native" }

// Custody implements Transport.
func (w *NativeWallet) Custody() types.Address { return w.custody }

// Fund credits holder with freshly issued value.
func (w *NativeWallet) Fund(holder types.Address, amount types.Amount) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mint(holder, amount)
}

// Debit implements Transport.
func (w *NativeWallet) Debit(ctx context.Context, from types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.move(from, w.custody, amount)
}

// Credit implements Transport.
func (w *NativeWallet) Credit(ctx context.Context, to types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to.IsZero() {
		return types.ErrZeroAddress
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.move(w.custody, to, amount)
}

// BalanceOf implements Transport.
func (w *NativeWallet) BalanceOf(_ context.Context, holder types.Address) (types.Amount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held[holder], nil
}

// TokenWallet is an in-memory fungible token. Payers approve an allowance
// for the custody account and Debit pulls from it.
type TokenWallet struct {
	balances
	symbol     string
	allowances map[types.Address]types.Amount
}

// NewTokenWallet creates a token rail.
func NewTokenWallet(symbol string, custody types.Address) *TokenWallet {
	return &TokenWallet{
		balances:   newBalances(custody),
		symbol:     symbol,
		allowances: make(map[types.Address]types.Amount),
	}
}

// Name implements Transport.
func (w *TokenWallet) Name() string { return "token:" + w.symbol }

// Custody implements Transport.
func (w *TokenWallet) Custody() types.Address { return w.custody }

// Mint issues tokens to holder.
func (w *TokenWallet) Mint(holder types.Address, amount types.Amount) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mint(holder, amount)
}

// Approve sets how much the custody account may pull from owner.
func (w *TokenWallet) Approve(owner types.Address, amount types.Amount) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.allowances[owner] = amount
}

// Allowance returns what custody may still pull from owner.
func (w *TokenWallet) Allowance(owner types.Address) types.Amount {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.allowances[owner]
}

// Debit implements Transport. It consumes allowance.
func (w *TokenWallet) Debit(ctx context.Context, from types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	left, ok := w.allowances[from].Sub(amount)
	if !ok {
		return fmt.Errorf("%w: %s approved %s, needs %s", ErrInsufficientAllowance, from, w.allowances[from], amount)
	}
	if err := w.move(from, w.custody, amount); err != nil {
		return err
	}
	w.allowances[from] = left
	return nil
}

// Credit implements Transport.
func (w *TokenWallet) Credit(ctx context.Context, to types.Address, amount types.Amount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to.IsZero() {
		return types.ErrZeroAddress
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.move(w.custody, to, amount)
}

// BalanceOf implements Transport.
func (w *TokenWallet) BalanceOf(_ context.Context, holder types.Address) (types.Amount, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held[holder], nil
}
