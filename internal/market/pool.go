package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/davyros/arbcycle/pkg/types"
)

// Pool is a single constant-product venue between two tokens. Address, tokens
// and fee are fixed at construction; reserves mutate once per block under the
// rate engine.
type Pool struct {
	Address  common.Address
	Factory  common.Address
	Token0   *types.Token
	Token1   *types.Token
	FeeBps   uint16
	Reserve0 uint256.Int
	Reserve1 uint256.Int

	// index is the pool's position in the market's address-ordered pool
	// list. The forward swap sits at 2*index in the swap table.
	index int
}

// FeeNumerator returns the amount-in multiplier out of 10000 after the factory
// fee (9970 for the standard 30 bps fee).
func (p *Pool) FeeNumerator() uint64 {
	return 10000 - uint64(p.FeeBps)
}

// Swap is a directed view of one pool side: forward consumes token0 and emits
// token1, reverse the opposite. Two swaps per pool live in the market's dense
// swap table; Index identifies a swap there and Index^1 is its reciprocal.
//
// LnRate caches ln(reserve_out / reserve_in) and is written only by the rate
// engine.
type Swap struct {
	Pool      *Pool
	Direction types.Direction
	Index     int
	LnRate    float64
}

// TokenIn returns the token this swap consumes.
func (s *Swap) TokenIn() *types.Token {
	if s.Direction == types.DirectionForward {
		return s.Pool.Token0
	}
	return s.Pool.Token1
}

// TokenOut returns the token this swap emits.
func (s *Swap) TokenOut() *types.Token {
	if s.Direction == types.DirectionForward {
		return s.Pool.Token1
	}
	return s.Pool.Token0
}

// ReserveIn returns the pool reserve on the input side.
func (s *Swap) ReserveIn() *uint256.Int {
	if s.Direction == types.DirectionForward {
		return &s.Pool.Reserve0
	}
	return &s.Pool.Reserve1
}

// ReserveOut returns the pool reserve on the output side.
func (s *Swap) ReserveOut() *uint256.Int {
	if s.Direction == types.DirectionForward {
		return &s.Pool.Reserve1
	}
	return &s.Pool.Reserve0
}

// IsReciprocal reports whether o is the same pool traded in the opposite
// direction. A cycle may never chain a swap into its reciprocal.
func (s *Swap) IsReciprocal(o *Swap) bool {
	return s.Pool == o.Pool && s.Direction != o.Direction
}
