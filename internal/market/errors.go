package market

import "errors"

var (
	// ErrDuplicatePool is returned when the same pool address is supplied twice
	// at construction.
	ErrDuplicatePool = errors.New("duplicate pool address")
	// ErrUnknownPool is returned when an update references a pool the market
	// does not contain.
	ErrUnknownPool = errors.New("unknown pool")
	// ErrZeroReserve is returned when a reserve update carries a non-positive
	// reserve.
	ErrZeroReserve = errors.New("zero reserve")
)
