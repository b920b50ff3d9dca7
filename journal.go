package escrow

import (
	"context"
	"time"

	"github.com/xraph/escrow/event"
)

// record queues events for the journal worker. When the worker is not
// running or its buffer is full the events are written by the caller.
func (g *Gateway) record(ctx context.Context, events ...*event.Event) {
	g.jmu.RLock()
	defer g.jmu.RUnlock()

	var overflow []*event.Event
	for _, e := range events {
		g.annotate(e)
		if g.running {
			select {
			case g.journal <- e:
				continue
			default:
			}
		}
		overflow = append(overflow, e)
	}
	if len(overflow) == 0 {
		return
	}

	if g.running {
		g.logger.Warn("escrow: journal buffer full, writing synchronously",
			"events", len(overflow),
		)
	}
	g.flushJournal(ctx, overflow)
}

func (g *Gateway) annotate(e *event.Event) {
	if g.displayDecimals < 0 {
		return
	}
	if !e.Amount.IsZero() {
		e.With("amount_units", e.Amount.Format(g.displayDecimals))
	}
	if !e.Fee.IsZero() {
		e.With("fee_units", e.Fee.Format(g.displayDecimals))
	}
}

// Flush blocks until every queued event has been written.
func (g *Gateway) Flush(ctx context.Context) error {
	g.jmu.RLock()
	if !g.running {
		g.jmu.RUnlock()
		return nil
	}
	done := make(chan struct{})
	select {
	case g.flushReq <- done:
	case <-ctx.Done():
		g.jmu.RUnlock()
		return ctx.Err()
	}
	g.jmu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// journalWorker batches events into the store.
func (g *Gateway) journalWorker(ctx context.Context) {
	defer g.wg.Done()

	batch := make([]*event.Event, 0, g.journalBatchSize)
	ticker := time.NewTicker(g.journalFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			g.flushJournal(ctx, batch)
			batch = make([]*event.Event, 0, g.journalBatchSize)
		}
	}
	drain := func() {
		for {
			select {
			case e := <-g.journal:
				batch = append(batch, e)
				if len(batch) >= g.journalBatchSize {
					flush()
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case <-g.stopChan:
			// Final flush
			drain()
			flush()
			return

		case e := <-g.journal:
			batch = append(batch, e)
			if len(batch) >= g.journalBatchSize {
				flush()
			}

		case done := <-g.flushReq:
			drain()
			flush()
			close(done)

		case <-ticker.C:
			flush()
		}
	}
}

func (g *Gateway) flushJournal(ctx context.Context, batch []*event.Event) {
	start := time.Now()

	if err := g.store.AppendEvents(ctx, batch); err != nil {
		g.logger.Error("failed to flush event journal",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	g.plugins.EmitEventsFlushed(ctx, len(batch), elapsed)

	g.logger.Debug("flushed event journal",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}
