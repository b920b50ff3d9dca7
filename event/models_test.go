package event_test

import (
	"strings"
	"testing"
	"time"

	"github.com/xraph/escrow/event"
)

func TestPaymentPlaced(t *testing.T) {
	e := event.PaymentPlaced("0xbuyer", "0xseller", 1000, 7)
	if e.Type != event.TypePaymentPlaced {
		t.Errorf("Type = %q", e.Type)
	}
	if !strings.HasPrefix(e.ID.String(), "evt_") {
		t.Errorf("ID = %q, want evt_ prefix", e.ID.String())
	}
	if e.Payer != "0xbuyer" || e.Receiver != "0xseller" || e.Amount != 1000 || e.PaymentID != 7 {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestMatch(t *testing.T) {
	now := time.Now().UTC()
	e := event.PaymentPlaced("0xbuyer", "0xseller", 1000, 7)
	e.OccurredAt = now

	tests := []struct {
		name string
		opts event.ListOpts
		want bool
	}{
		{"empty filter", event.ListOpts{}, true},
		{"type", event.ListOpts{Type: event.TypePaymentPlaced}, true},
		{"other type", event.ListOpts{Type: event.TypeBucketFrozen}, false},
		{"receiver", event.ListOpts{Receiver: "0xseller"}, true},
		{"other receiver", event.ListOpts{Receiver: "0xother"}, false},
		{"payment", event.ListOpts{PaymentID: 7}, true},
		{"other payment", event.ListOpts{PaymentID: 8}, false},
		{"inside window", event.ListOpts{Start: now.Add(-time.Minute), End: now.Add(time.Minute)}, true},
		{"end is exclusive", event.ListOpts{End: now}, false},
		{"before start", event.ListOpts{Start: now.Add(time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Match(tt.opts); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
