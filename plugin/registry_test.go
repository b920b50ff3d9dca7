package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/plugin"
)

type recorder struct {
	name string

	mu     sync.Mutex
	placed []uint64
	fees   []uint16
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnPaymentPlaced(_ context.Context, p *ledger.Placement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placed = append(r.placed, p.Payment.ID)
	return nil
}

func (r *recorder) OnFeeChanged(_ context.Context, _, after fee.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees = append(r.fees, after.Bps)
	return errors.New("ignored")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnBucketFrozen(ctx context.Context, _ *ledger.Bucket) error {
	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
	}
	return nil
}

func TestRegisterDiscoversHooks(t *testing.T) {
	reg := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	require.NoError(t, reg.Register(rec))
	require.Error(t, reg.Register(&recorder{name: "rec"}))
	require.Equal(t, 1, reg.Count())
	require.Same(t, rec, reg.Get("rec"))
	require.Nil(t, reg.Get("missing"))

	ctx := context.Background()
	reg.EmitPaymentPlaced(ctx, &ledger.Placement{Payment: ledger.Payment{ID: 3}})
	reg.EmitFeeChanged(ctx, fee.Settings{Bps: 100}, fee.Settings{Bps: 250})
	// no OnBucketFrozen implementation: nothing to call
	reg.EmitBucketFrozen(ctx, &ledger.Bucket{})

	require.Equal(t, []uint64{3}, rec.placed)
	require.Equal(t, []uint16{250}, rec.fees)
}

func TestHookTimeout(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, reg.Register(slow{}))

	start := time.Now()
	reg.EmitBucketFrozen(context.Background(), &ledger.Bucket{})
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
