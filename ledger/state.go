package ledger

import "fmt"

// State is the lifecycle stage of a bucket and of the payments it holds.
type State uint8

const (
	StateNone State = iota
	StatePending
	StateReview
	StateReady
	StateApproved
	StateProcessed
)

var stateNames = map[State]string{
	StateNone:      "none",
	StatePending:   "pending",
	StateReview:    "review",
	StateReady:     "ready",
	StateApproved:  "approved",
	StateProcessed: "processed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// ParseState converts a state name back into a State.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return StateNone, fmt.Errorf("ledger: unknown state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Mutable reports whether payments in this state still accept merges,
// reviews and refunds.
func (s State) Mutable() bool {
	return s == StatePending || s == StateReview || s == StateReady
}

// Refundable reports whether a payment in this state may be refunded.
func (s State) Refundable() bool {
	return s == StatePending || s == StateReview
}

// rank orders buckets left to right within an account. A state may never
// appear to the right of a higher-ranked one.
func (s State) rank() int {
	switch s {
	case StateReview:
		return 0
	case StateProcessed:
		return 1
	case StateApproved:
		return 2
	case StateReady:
		return 3
	case StatePending:
		return 4
	default:
		return -1
	}
}
