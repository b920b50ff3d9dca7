package types

import (
	"errors"
	"math"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	tests := []struct {
		name   string
		op     func() (Amount, bool)
		want   Amount
		wantOK bool
	}{
		{"Add", func() (Amount, bool) { return Amount(100).Add(200) }, 300, true},
		{"Add overflow", func() (Amount, bool) { return Amount(math.MaxUint64).Add(1) }, 0, false},
		{"Sub", func() (Amount, bool) { return Amount(500).Sub(200) }, 300, true},
		{"Sub to zero", func() (Amount, bool) { return Amount(500).Sub(500) }, 0, true},
		{"Sub underflow", func() (Amount, bool) { return Amount(100).Sub(101) }, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.op()
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplitBps(t *testing.T) {
	tests := []struct {
		name    string
		total   Amount
		bps     uint16
		wantNet Amount
		wantFee Amount
	}{
		{"one percent", 6000, 100, 5940, 60},
		{"processed bucket", 5000, 100, 4950, 50},
		{"floors the fee", 99, 100, 99, 0},
		{"floors odd totals", 1999, 250, 1950, 49},
		{"zero fee", 6000, 0, 6000, 0},
		{"full fee", 6000, 10000, 0, 6000},
		{"no overflow on large totals", math.MaxUint64, 100, math.MaxUint64 - 184467440737095516, 184467440737095516},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, fee := tt.total.SplitBps(tt.bps)
			if net != tt.wantNet {
				t.Errorf("net: got %d, want %d", net, tt.wantNet)
			}
			if fee != tt.wantFee {
				t.Errorf("fee: got %d, want %d", fee, tt.wantFee)
			}
			if net+fee != tt.total {
				t.Errorf("net+fee = %d, want %d", net+fee, tt.total)
			}
		})
	}
}

func TestMulBpsPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for bps above 10000")
		}
	}()
	Amount(1).MulBps(10001)
}

func TestSum(t *testing.T) {
	got, err := Sum(1000, 2000, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6000 {
		t.Errorf("got %d, want 6000", got)
	}

	if _, err := Sum(math.MaxUint64, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestAmountFormat(t *testing.T) {
	tests := []struct {
		amount   Amount
		decimals int32
		want     string
	}{
		{1500, 2, "15.00"},
		{5, 2, "0.05"},
		{100000000, 8, "1.00000000"},
		{1500000000000000000, 18, "1.500000000000000000"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.amount.Format(tt.decimals); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int32
		want     Amount
		wantErr  bool
	}{
		{"15", 2, 1500, false},
		{"0.05", 2, 5, false},
		{"1.5", 18, 1500000000000000000, false},
		{"0.001", 2, 0, true},
		{"-1", 2, 0, true},
		{"abc", 2, 0, true},
		{"18446744073709551616", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("100000000")
	if err != nil {
		t.Fatal(err)
	}
	if got != 100000000 {
		t.Errorf("got %d", got)
	}
	if got, _ := ParseAmount(""); got != 0 {
		t.Errorf("empty string should parse to zero, got %d", got)
	}
	if _, err := ParseAmount("-5"); err == nil {
		t.Error("expected error for negative input")
	}
}

func TestAddressIsZero(t *testing.T) {
	tests := []struct {
		addr Address
		want bool
	}{
		{ZeroAddress, true},
		{"  ", true},
		{"0x0000000000000000000000000000000000000000", true},
		{"0x00000000000000000000000000000000000000a1", false},
		{"seller", false},
	}

	for _, tt := range tests {
		if got := tt.addr.IsZero(); got != tt.want {
			t.Errorf("%q.IsZero() = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
