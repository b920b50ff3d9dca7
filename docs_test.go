package escrow_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/access"
	audithook "github.com/xraph/escrow/audit_hook"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/transport"
	"github.com/xraph/escrow/types"
)

// TestDocumentationExamples verifies that the package documentation examples work.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		var (
			admin    = escrow.Address("0xadmin")
			approver = escrow.Address("0xapprover")
			dao      = escrow.Address("0xdao")
			vault    = escrow.Address("0xvault")
			buyer    = escrow.Address("0xbuyer")
			seller   = escrow.Address("0xseller")
		)

		roles, err := access.New(admin)
		if err != nil {
			t.Fatal(err)
		}
		if err := roles.GrantRole(admin, access.RoleApprover, approver); err != nil {
			t.Fatal(err)
		}
		if err := roles.GrantRole(admin, access.RoleDAO, dao); err != nil {
			t.Fatal(err)
		}

		wallet := transport.NewNativeWallet("0xescrow")
		if err := wallet.Fund(buyer, 10_000); err != nil {
			t.Fatal(err)
		}

		var audited int
		g := escrow.New(memory.New(), wallet, roles,
			escrow.WithLogger(slog.Default()),
			escrow.WithFeeSettings(100, vault),
			escrow.WithJournalConfig(100, 5*time.Second),
			escrow.WithPlugin(audithook.New(audithook.RecorderFunc(
				func(_ context.Context, e *audithook.AuditEvent) error {
					audited++
					log.Printf("audit: %s %s", e.Action, e.ResourceID)
					return nil
				},
			))),
		)

		ctx := context.Background()
		if err := g.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer g.Stop()

		pid, err := g.PlacePayment(ctx, seller, escrow.PaymentInput{
			ExternalID: 100,
			Payer:      buyer,
			Amount:     6000,
		}, 6000)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("placed payment %d\n", pid)

		if _, err := g.FreezePending(ctx, approver, seller); err != nil {
			t.Fatal(err)
		}
		if _, err := g.ApprovePayments(ctx, approver, seller); err != nil {
			t.Fatal(err)
		}
		if _, err := g.ProcessPayments(ctx, dao, seller); err != nil {
			t.Fatal(err)
		}

		if got := g.GetAmountToPayOut(seller); got != 5940 {
			t.Errorf("seller payable: got %s, want 5940", got)
		}
		if got := g.GetAmountToPayOut(vault); got != 60 {
			t.Errorf("vault payable: got %s, want 60", got)
		}

		if _, err := g.PushPayment(ctx, dao, seller); err != nil {
			t.Fatal(err)
		}
		if audited != 5 {
			t.Errorf("audit events: got %d, want 5", audited)
		}
	})

	t.Run("AmountExamples", func(t *testing.T) {
		a, err := escrow.ParseUnits("1.25", 6)
		if err != nil {
			t.Fatal(err)
		}
		if a != 1_250_000 {
			t.Errorf("ParseUnits: got %d", a)
		}
		if s := a.Format(6); s != "1.250000" {
			t.Errorf("Format: got %q", s)
		}

		net, fee := types.Amount(6000).SplitBps(100)
		if net != 5940 || fee != 60 {
			t.Errorf("SplitBps: got %d/%d", net, fee)
		}
	})
}
