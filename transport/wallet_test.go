package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

const (
	custody types.Address = "0xswitch"
	buyer   types.Address = "0xbuyer"
	seller  types.Address = "0xseller"
)

var (
	_ transport.Transport = (*transport.NativeWallet)(nil)
	_ transport.Transport = (*transport.TokenWallet)(nil)
)

func balance(t *testing.T, tr transport.Transport, holder types.Address) types.Amount {
	t.Helper()
	b, err := tr.BalanceOf(context.Background(), holder)
	require.NoError(t, err)
	return b
}

func TestNativeWallet(t *testing.T) {
	ctx := context.Background()
	w := transport.NewNativeWallet(custody)
	require.Equal(t, "native", w.Name())
	require.NoError(t, w.Fund(buyer, 1000))

	require.NoError(t, w.Debit(ctx, buyer, 600))
	require.Equal(t, types.Amount(400), balance(t, w, buyer))
	require.Equal(t, types.Amount(600), balance(t, w, custody))

	require.ErrorIs(t, w.Debit(ctx, buyer, 401), transport.ErrInsufficientBalance)
	require.Equal(t, types.Amount(400), balance(t, w, buyer))

	require.NoError(t, w.Credit(ctx, seller, 550))
	require.Equal(t, types.Amount(550), balance(t, w, seller))
	require.Equal(t, types.Amount(50), balance(t, w, custody))

	require.ErrorIs(t, w.Credit(ctx, seller, 51), transport.ErrInsufficientBalance)
	require.ErrorIs(t, w.Credit(ctx, types.ZeroAddress, 1), types.ErrZeroAddress)
}

func TestTokenWalletAllowance(t *testing.T) {
	ctx := context.Background()
	w := transport.NewTokenWallet("USDC", custody)
	require.Equal(t, "token:USDC", w.Name())
	require.NoError(t, w.Mint(buyer, 1000))

	require.ErrorIs(t, w.Debit(ctx, buyer, 100), transport.ErrInsufficientAllowance)

	w.Approve(buyer, 300)
	require.NoError(t, w.Debit(ctx, buyer, 300))
	require.Zero(t, w.Allowance(buyer))
	require.Equal(t, types.Amount(300), balance(t, w, custody))

	// allowance without balance does not move funds
	w.Approve(buyer, 5000)
	require.ErrorIs(t, w.Debit(ctx, buyer, 800), transport.ErrInsufficientBalance)
	require.Equal(t, types.Amount(5000), w.Allowance(buyer))
	require.Equal(t, types.Amount(700), balance(t, w, buyer))

	require.NoError(t, w.Credit(ctx, seller, 300))
	require.Equal(t, types.Amount(300), balance(t, w, seller))
}

func TestWalletHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := transport.NewNativeWallet(custody)
	require.NoError(t, w.Fund(buyer, 10))
	require.ErrorIs(t, w.Debit(ctx, buyer, 1), context.Canceled)
	require.Equal(t, types.Amount(10), balance(t, w, buyer))
}
