package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/observability"
	"github.com/xraph/escrow/payout"
)

func TestMetricsExtensionCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	require.NoError(t, m.OnPaymentPlaced(ctx, &ledger.Placement{Added: 6000}))
	require.NoError(t, m.OnPaymentPlaced(ctx, &ledger.Placement{Merged: true, Added: 10}))
	require.NoError(t, m.OnBucketProcessed(ctx, &ledger.Settlement{
		Buckets: []ledger.BucketSettlement{{BucketID: id.NewBucketID(), Total: 6000, Net: 5940, Fee: 60}},
		Total:   6000,
		Net:     5940,
		Fee:     60,
	}))
	require.NoError(t, m.OnPayoutReleased(ctx, payout.New("0xseller", payout.KindReceiver, 5940, "native")))
	require.NoError(t, m.OnAccessDenied(ctx, access.RoleApprover, "0xmallory"))
	require.NoError(t, m.OnEventsFlushed(ctx, 3, 2*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentPlaced.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentMerged.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BucketProcessed.(prometheus.Counter)))
	assert.Equal(t, 6000.0, testutil.ToFloat64(m.SettledVolume.(prometheus.Counter)))
	assert.Equal(t, 60.0, testutil.ToFloat64(m.FeeCollected.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayoutReleased.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AccessDenied.(prometheus.Counter)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.JournalFlushed.(prometheus.Counter)))

	n, err := testutil.GatherAndCount(reg, "escrow_payment_amount")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("escrow.test.hits")
	b := f.Counter("escrow.test.hits")
	a.Inc()
	b.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.(prometheus.Counter)))

	// A second factory on the same registry picks up the registered collector.
	g := observability.NewPrometheusFactory(reg)
	c := g.Counter("escrow.test.hits")
	c.Inc()
	assert.Equal(t, 3.0, testutil.ToFloat64(a.(prometheus.Counter)))
}
