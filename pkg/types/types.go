package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Direction selects one side of a pool: forward trades token0 for token1,
// reverse trades token1 for token0.
type Direction uint8

const (
	DirectionForward Direction = 0
	DirectionReverse Direction = 1
)

// Opposite returns the other side of the same pool.
func (d Direction) Opposite() Direction {
	return d ^ 1
}

func (d Direction) String() string {
	if d == DirectionForward {
		return "forward"
	}
	return "reverse"
}

// Token represents an ERC20 token
type Token struct {
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
}

// Factory represents a V2-family factory contract; pools inherit its fee.
type Factory struct {
	Address common.Address
	Name    string
	FeeBps  uint16 // 30 = 0.30%
	Version string
}

// PoolDescriptor is the wire shape sync workers hand to the world, both at
// initialization and in per-block reserve batches.
type PoolDescriptor struct {
	Address  common.Address
	Factory  common.Address
	Token0   common.Address
	Token1   common.Address
	FeeBps   uint16
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// SwapQuote is one leg of a quoted cycle.
type SwapQuote struct {
	Pool      common.Address
	Direction Direction
	AmountIn  *big.Int
	AmountOut *big.Int
	Rate      float64 // amount_out / amount_in
}

// CycleQuote is a sized arbitrage opportunity: the optimal input amount for a
// cycle and the exact integer amounts produced along the way.
type CycleQuote struct {
	CycleID         []byte // canonical hash of the cycle
	SwapQuotes      []SwapQuote
	AmountIn        *big.Int
	AmountOut       *big.Int
	Profit          *big.Int // AmountOut - AmountIn, signed
	ProfitMarginBps int32
}

// IsProfitable reports whether executing the quote yields more of the start
// token than was supplied.
func (q *CycleQuote) IsProfitable() bool {
	return q.Profit != nil && q.Profit.Sign() > 0
}

// WorldUpdate is the result of applying one block's reserve changes.
type WorldUpdate struct {
	Block            uint64
	Quotes           []CycleQuote // profitable only, descending profit
	Applied          int          // pools whose reserves were set
	TouchedCycles    int
	UnknownPools     []common.Address
	ZeroReservePools []common.Address
	Partial          bool // quote budget expired before all dirty cycles were quoted
	Elapsed          time.Duration
}
