package types

import "strings"

// Address identifies a participant: payer, receiver, vault, or an operator
// holding a role. The textual form is opaque to the ledger.
type Address string

// ZeroAddress is the null identity. As a vault address it means
// "no vault configured".
const ZeroAddress Address = ""

// IsZero reports whether the address is empty or an all-zero hex address
// such as 0x0000000000000000000000000000000000000000.
func (a Address) IsZero() bool {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return true
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return false
	}
	return strings.Trim(s, "0") == ""
}

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }
