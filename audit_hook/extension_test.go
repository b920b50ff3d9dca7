package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/escrow/audit_hook"
	"github.com/xraph/escrow/access"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/ledger"
	"github.com/xraph/escrow/payout"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestPaymentPlacedAndMerged(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)
	ctx := context.Background()

	p := ledger.Payment{ID: 4, ExternalID: 100, Receiver: "0xseller", Payer: "0xbuyer", Amount: 1000}
	require.NoError(t, ext.OnPaymentPlaced(ctx, &ledger.Placement{Payment: p, Added: 1000}))
	require.NoError(t, ext.OnPaymentPlaced(ctx, &ledger.Placement{Payment: p, Merged: true, Added: 50}))

	require.Len(t, s.events, 2)
	require.Equal(t, audithook.ActionPaymentPlaced, s.events[0].Action)
	require.Equal(t, "4", s.events[0].ResourceID)
	require.Equal(t, "0xseller", s.events[0].Metadata["receiver"])
	require.Equal(t, audithook.ActionPaymentMerged, s.events[1].Action)
	require.Equal(t, uint64(50), s.events[1].Metadata["added"])
}

func TestProcessedRecordsEachBucket(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	st := &ledger.Settlement{
		Receiver: "0xseller",
		FeeBps:   100,
		Buckets: []ledger.BucketSettlement{
			{BucketID: id.NewBucketID(), Total: 6000, Net: 5940, Fee: 60},
			{BucketID: id.NewBucketID(), Total: 100, Net: 99, Fee: 1},
		},
	}
	require.NoError(t, ext.OnBucketProcessed(context.Background(), st))
	require.Len(t, s.events, 2)
	require.Equal(t, uint64(5940), s.events[0].Metadata["net"])
	require.Equal(t, st.Buckets[1].BucketID.String(), s.events[1].ResourceID)
}

func TestPayoutFailedCarriesReason(t *testing.T) {
	s := &sink{}
	ext := audithook.New(s)

	po := payout.New("0xseller", payout.KindReceiver, 10, "native")
	require.NoError(t, ext.OnPayoutFailed(context.Background(), po, errors.New("rail down")))
	require.Len(t, s.events, 1)
	require.Equal(t, audithook.OutcomeFailure, s.events[0].Outcome)
	require.Equal(t, audithook.SeverityCritical, s.events[0].Severity)
	require.Equal(t, "rail down", s.events[0].Reason)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()

	only := &sink{}
	ext := audithook.New(only, audithook.WithEnabledActions(audithook.ActionAccessDenied))
	require.NoError(t, ext.OnBucketFrozen(ctx, &ledger.Bucket{ID: id.NewBucketID()}))
	require.NoError(t, ext.OnAccessDenied(ctx, access.RoleDAO, "0xmallory"))
	require.Len(t, only.events, 1)
	require.Equal(t, "dao", only.events[0].ResourceID)

	skip := &sink{}
	ext = audithook.New(skip, audithook.WithDisabledActions(audithook.ActionBucketFrozen))
	require.NoError(t, ext.OnBucketFrozen(ctx, &ledger.Bucket{ID: id.NewBucketID()}))
	require.NoError(t, ext.OnBucketApproved(ctx, &ledger.Bucket{ID: id.NewBucketID()}))
	require.Len(t, skip.events, 1)
	require.Equal(t, audithook.ActionBucketApproved, skip.events[0].Action)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend unavailable")
	}))
	require.NoError(t, ext.OnBucketApproved(context.Background(), &ledger.Bucket{ID: id.NewBucketID()}))
}
