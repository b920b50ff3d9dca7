// Package escrow provides a bucketed escrow ledger and payment gateway for Go
// applications.
//
// Escrow is designed as a library, not a service. Payers place payments for a
// receiver; the payments collect in the receiver's pending bucket and move
// through an approval pipeline before the net proceeds are released to the
// receiver and the platform fee to a vault. It provides:
//
//   - A per-receiver bucket state machine (pending, ready, approved, processed, review)
//   - Basis-point fee splitting with floor rounding
//   - Role-gated mutation through an injected access checker
//   - Pluggable currency rails (native value or allowance-based tokens)
//   - Payout receipts and an append-only event journal
//   - Checkpointing to memory, PostgreSQL, SQLite, MongoDB or go-datastore
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/escrow"
//	    "github.com/xraph/escrow/access"
//	    "github.com/xraph/escrow/store/memory"
//	    "github.com/xraph/escrow/transport"
//	)
//
//	roles, err := access.New(admin)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	wallet := transport.NewNativeWallet(custody)
//
//	g := escrow.New(memory.New(), wallet, roles,
//	    escrow.WithFeeSettings(100, vault),
//	)
//	if err := g.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer g.Stop()
//
// # Lifecycle
//
// A payment is placed by its payer. supplied must cover the amount; exactly
// the amount is pulled into custody:
//
//	pid, err := g.PlacePayment(ctx, seller, escrow.PaymentInput{
//	    ExternalID: 100,
//	    Payer:      buyer,
//	    Amount:     6000,
//	}, 6000)
//
// An approver freezes the pending bucket and approves it; a processor (the
// "dao" role) settles approved buckets at the current fee rate:
//
//	g.FreezePending(ctx, approver, seller)
//	g.ApprovePayments(ctx, approver, seller)
//	g.ProcessPayments(ctx, dao, seller)  // seller: 5940 payable, vault: 60
//
// Payable balances leave custody with PushPayment, PullPayment or
// PushVaultPayment. The ledger balance is always debited before the transfer
// and restored if the transfer fails.
//
// # Batches
//
// FreezePendingBatch, ApprovePaymentsBatch and ProcessPaymentsBatch apply the
// single-receiver operation to each receiver independently. Successful
// receivers stay committed; the failures come back as a *BatchError.
//
// # Persistence
//
// The in-memory ledger is authoritative while the gateway runs. Each
// committed operation checkpoints the touched accounts and balances to the
// store, and Start rebuilds the ledger from the last checkpoint.
package escrow
