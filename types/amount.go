// Package types provides common value types used across Escrow.
package types

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strconv"

	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale: 10000 bps is 100%.
const BpsDenominator = 10000

// Amount is a quantity of the custodied currency in its smallest unit
// (wei, cents, token base units). All arithmetic is integer-only and
// overflow-checked.
type Amount uint64

// ErrAmountOverflow is returned when an addition would wrap around.
var ErrAmountOverflow = errors.New("amount: overflow")

// Add returns a+b and false if the sum overflows.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return Amount(sum), carry == 0
}

// Sub returns a-b and false if b is larger than a.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// MulBps returns floor(a * bps / 10000). The product is computed in 128 bits
// so large amounts never overflow. Panics if bps exceeds BpsDenominator.
func (a Amount) MulBps(bps uint16) Amount {
	if bps > BpsDenominator {
		panic(fmt.Sprintf("amount: bps %d out of range", bps))
	}
	hi, lo := bits.Mul64(uint64(a), uint64(bps))
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return Amount(q)
}

// SplitBps divides a into the part kept by the payee and the fee.
// The fee is floored and the net is the exact residual, so
// net + fee == a always holds.
func (a Amount) SplitBps(bps uint16) (net, fee Amount) {
	fee = a.MulBps(bps)
	return a - fee, fee
}

// IsZero returns true if the amount is zero.
func (a Amount) IsZero() bool { return a == 0 }

// Min returns the smaller of two amounts.
func (a Amount) Min(b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// String returns the amount in base units.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// Decimal returns the amount scaled down by the given number of decimals.
// Amount(1500).Decimal(2) is 15.00.
func (a Amount) Decimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -decimals)
}

// Format renders the amount in major units with exactly decimals places.
// Amount(1500000000000000000).Format(18) is "1.500000000000000000".
func (a Amount) Format(decimals int32) string {
	return a.Decimal(decimals).StringFixed(decimals)
}

// Sum adds amounts, returning ErrAmountOverflow if the total wraps.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		next, ok := total.Add(a)
		if !ok {
			return 0, ErrAmountOverflow
		}
		total = next
	}
	return total, nil
}

// ParseAmount parses a base-unit decimal string.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	return Amount(v), nil
}

// ParseUnits converts a major-unit string such as "1.25" into base units
// using the given number of decimals. Fractions finer than the unit and
// negative values are rejected.
func ParseUnits(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount: parse %q: negative value", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount: parse %q: more than %d decimals", s, decimals)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount: parse %q: %w", s, ErrAmountOverflow)
	}
	return Amount(bi.Uint64()), nil
}
