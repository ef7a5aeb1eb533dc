package engine

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

// feeDenominator is the basis of the V2 fee arithmetic: with a 30 bps fee the
// amount-in multiplier is 9970/10000, the canonical 997/1000.
const feeDenominator = 10000

var (
	u10000 = uint256.NewInt(feeDenominator)
	big1e4 = big.NewInt(feeDenominator)
)

// Quoter sizes profitable cycles. Detection (the positive ln rate) is
// floating point and may carry false positives near zero; the quoter is the
// ground truth, evaluating the exact integer amount-out arithmetic the chain
// itself runs, so an emitted quote executes unchanged.
type Quoter struct {
	// MaxSwapFractionBps caps amount_in relative to each leg's input reserve,
	// bounding price impact. 100 means 1%.
	MaxSwapFractionBps uint64
}

// NewQuoter creates a quoter with the given reserve-fraction clamp.
func NewQuoter(maxSwapFractionBps uint64) *Quoter {
	return &Quoter{MaxSwapFractionBps: maxSwapFractionBps}
}

// Quote computes the optimal input for the cycle and the amounts it produces.
// Returns false when the cycle has no post-fee profit at any permitted size,
// or when a reserve is zero.
func (q *Quoter) Quote(c *cycle.Cycle) (*types.CycleQuote, bool) {
	swaps := c.Swaps()

	maxIn := q.maxInput(swaps)
	if maxIn == nil || maxIn.Sign() < 1 {
		return nil, false
	}

	var x *big.Int
	if len(swaps) == 2 {
		x = optimalTwoPool(swaps[0], swaps[1])
	} else {
		x = ternarySearch(swaps, maxIn)
	}
	if x == nil || x.Sign() < 1 {
		return nil, false
	}
	x = clamp(x, big.NewInt(1), maxIn)
	x = hillClimb(swaps, x, maxIn)

	amounts := simulate(swaps, x)
	out := amounts[len(amounts)-1]
	profit := new(big.Int).Sub(out, x)
	if profit.Sign() < 1 {
		return nil, false
	}

	quote := &types.CycleQuote{
		CycleID:         c.ID().Bytes(),
		SwapQuotes:      make([]types.SwapQuote, len(swaps)),
		AmountIn:        x,
		AmountOut:       out,
		Profit:          profit,
		ProfitMarginBps: marginBps(profit, x),
	}
	for i, s := range swaps {
		quote.SwapQuotes[i] = types.SwapQuote{
			Pool:      s.Pool.Address,
			Direction: s.Direction,
			AmountIn:  amounts[i],
			AmountOut: amounts[i+1],
			Rate:      ratio(amounts[i+1], amounts[i]),
		}
	}
	return quote, true
}

// maxInput returns the clamp ⌊min_i reserve_in_i × bps / 10000⌋, or nil when
// a reserve is zero.
func (q *Quoter) maxInput(swaps []*market.Swap) *big.Int {
	var min *uint256.Int
	for _, s := range swaps {
		if s.ReserveIn().IsZero() || s.ReserveOut().IsZero() {
			return nil
		}
		if min == nil || s.ReserveIn().Lt(min) {
			min = s.ReserveIn()
		}
	}
	lim := new(big.Int).Mul(min.ToBig(), new(big.Int).SetUint64(q.MaxSwapFractionBps))
	return lim.Div(lim, big1e4)
}

// legOut is the exact V2 output amount for one leg:
// out = in·f·r_out / (r_in·10000 + in·f) with floor division, f the pool's
// fee numerator. Operands stay well under 256 bits for 112-bit reserves.
func legOut(amountIn *uint256.Int, s *market.Swap) *uint256.Int {
	inFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(s.Pool.FeeNumerator()))
	num := new(uint256.Int).Mul(inFee, s.ReserveOut())
	den := new(uint256.Int).Mul(s.ReserveIn(), u10000)
	den.Add(den, inFee)
	return num.Div(num, den)
}

// simulate runs x through the cycle and returns the n+1 amounts, input first.
func simulate(swaps []*market.Swap, x *big.Int) []*big.Int {
	amounts := make([]*big.Int, len(swaps)+1)
	amounts[0] = x

	cur, _ := uint256.FromBig(x)
	for i, s := range swaps {
		cur = legOut(cur, s)
		amounts[i+1] = cur.ToBig()
	}
	return amounts
}

// cycleProfit is amount_out − amount_in for input x, signed.
func cycleProfit(swaps []*market.Swap, x *big.Int) *big.Int {
	amounts := simulate(swaps, x)
	return new(big.Int).Sub(amounts[len(amounts)-1], x)
}

// optimalTwoPool solves the closed-form optimum for a two-leg cycle. With leg
// reserves (a,b) and (c,d) and fee numerators f1, f2 over F = 10000, the
// composed output is
//
//	out(x) = f1·f2·b·d·x / (F²·a·c + (F·f1·c + f1·f2·b)·x)
//
// and out'(x) = 1 gives
//
//	x* = (sqrt(f1·f2·a·b·c·d) − F·a·c) · F / (f1·(F·c + f2·b))
//
// The radicand can exceed 256 bits, so this runs in big.Int. A non-positive
// x* means the cycle cannot beat its own fees.
func optimalTwoPool(s1, s2 *market.Swap) *big.Int {
	a := s1.ReserveIn().ToBig()
	b := s1.ReserveOut().ToBig()
	c := s2.ReserveIn().ToBig()
	d := s2.ReserveOut().ToBig()
	f1 := new(big.Int).SetUint64(s1.Pool.FeeNumerator())
	f2 := new(big.Int).SetUint64(s2.Pool.FeeNumerator())

	rad := new(big.Int).Mul(f1, f2)
	rad.Mul(rad, a)
	rad.Mul(rad, b)
	rad.Mul(rad, c)
	rad.Mul(rad, d)
	root := new(big.Int).Sqrt(rad)

	ac := new(big.Int).Mul(a, c)
	num := new(big.Int).Sub(root, new(big.Int).Mul(big1e4, ac))
	if num.Sign() < 1 {
		return nil
	}
	num.Mul(num, big1e4)

	den := new(big.Int).Mul(big1e4, c)
	den.Add(den, new(big.Int).Mul(f2, b))
	den.Mul(den, f1)

	return num.Div(num, den)
}

// ternarySearch finds the discrete maximum of the unimodal profit function
// over [1, maxIn] for cycles of three or more legs. The best evaluation seen
// is tracked throughout and the final interval is scanned exhaustively, so
// floor-division plateaus cannot lose the optimum's neighborhood.
func ternarySearch(swaps []*market.Swap, maxIn *big.Int) *big.Int {
	lo := big.NewInt(1)
	hi := new(big.Int).Set(maxIn)

	best := new(big.Int).Set(lo)
	bestProfit := cycleProfit(swaps, best)

	gap := new(big.Int)
	for gap.Sub(hi, lo).Cmp(big.NewInt(2)) > 0 {
		third := new(big.Int).Div(gap, big.NewInt(3))
		m1 := new(big.Int).Add(lo, third)
		m2 := new(big.Int).Sub(hi, third)

		p1 := cycleProfit(swaps, m1)
		p2 := cycleProfit(swaps, m2)
		if p1.Cmp(bestProfit) > 0 {
			best.Set(m1)
			bestProfit = p1
		}
		if p2.Cmp(bestProfit) > 0 {
			best.Set(m2)
			bestProfit = p2
		}

		if p1.Cmp(p2) < 0 {
			lo.Add(m1, big.NewInt(1))
		} else {
			hi.Sub(m2, big.NewInt(1))
		}
	}

	for x := new(big.Int).Set(lo); x.Cmp(hi) <= 0; x.Add(x, big.NewInt(1)) {
		p := cycleProfit(swaps, x)
		if p.Cmp(bestProfit) > 0 {
			best.Set(x)
			bestProfit = p
		}
	}
	return best
}

// hillClimb nudges x by ±1 while profit strictly improves, pinning the
// discrete local optimum that the continuous closed form or a coarse search
// can miss by a unit.
func hillClimb(swaps []*market.Swap, x, maxIn *big.Int) *big.Int {
	one := big.NewInt(1)
	best := new(big.Int).Set(x)
	bestProfit := cycleProfit(swaps, best)

	for {
		improved := false
		for _, step := range []*big.Int{
			new(big.Int).Sub(best, one),
			new(big.Int).Add(best, one),
		} {
			if step.Sign() < 1 || step.Cmp(maxIn) > 0 {
				continue
			}
			if p := cycleProfit(swaps, step); p.Cmp(bestProfit) > 0 {
				best.Set(step)
				bestProfit = p
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// marginBps is ⌊10000 × profit / amountIn⌋ saturated to int32.
func marginBps(profit, amountIn *big.Int) int32 {
	m := new(big.Int).Mul(profit, big1e4)
	m.Div(m, amountIn)
	if !m.IsInt64() {
		if m.Sign() > 0 {
			return math.MaxInt32
		}
		return math.MinInt32
	}
	v := m.Int64()
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// clamp bounds x to [lo, hi].
func clamp(x, lo, hi *big.Int) *big.Int {
	if x.Cmp(lo) < 0 {
		return lo
	}
	if x.Cmp(hi) > 0 {
		return hi
	}
	return x
}

// ratio returns num/den as float64 for the per-leg rate display.
func ratio(num, den *big.Int) float64 {
	if den.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(num),
		new(big.Float).SetInt(den),
	).Float64()
	return f
}
