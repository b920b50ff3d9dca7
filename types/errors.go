package types

import "errors"

// Argument validation errors shared by every package.
var (
	ErrZeroAddress = errors.New("escrow: zero address argument")
	ErrZeroValue   = errors.New("escrow: zero value argument")
)
