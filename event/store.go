package event

import (
	"context"
	"time"
)

type Store interface {
	AppendEvents(ctx context.Context, events []*Event) error
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}

// ListOpts filters the journal. Results are ordered by OccurredAt.
type ListOpts struct {
	Type      Type
	Receiver  string
	PaymentID uint64
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}
