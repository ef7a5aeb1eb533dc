package engine

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

// RateEngine maintains the log-space rates: ln(reserve_out/reserve_in) per
// swap and the cached sum per cycle. A reserve change walks the inverted
// index and applies the rate delta to each affected cycle, so the per-update
// cost is proportional to the cycles actually touched rather than the cycle
// count.
//
// Sums drift as deltas accumulate; Rebuild recomputes everything from scratch
// and the world runs it on a block interval as a safety net.
type RateEngine struct {
	market *market.Market
	cycles *cycle.Set
	dirty  mapset.Set[int]
}

// NewRateEngine binds the engine to a market and its cycle set. Call Rebuild
// before the first update to seed the cached rates.
func NewRateEngine(m *market.Market, s *cycle.Set) *RateEngine {
	return &RateEngine{
		market: m,
		cycles: s,
		dirty:  mapset.NewThreadUnsafeSet[int](),
	}
}

// SetReserves validates and applies one pool's new reserves, updating both
// swap rates and every cycle through the pool. Non-positive reserves fail
// with ErrZeroReserve and leave all state untouched.
func (e *RateEngine) SetReserves(p *market.Pool, r0, r1 *uint256.Int) error {
	if r0 == nil || r1 == nil || r0.IsZero() || r1.IsZero() {
		return fmt.Errorf("pool %s: %w", p.Address.Hex(), market.ErrZeroReserve)
	}

	fwd, ok := e.market.Swap(p.Address, types.DirectionForward)
	if !ok {
		return fmt.Errorf("pool %s: %w", p.Address.Hex(), market.ErrUnknownPool)
	}
	rev := e.market.SwapAt(fwd.Index ^ 1)

	newFwd := lnRate(r0, r1)
	oldFwd := fwd.LnRate

	p.Reserve0.Set(r0)
	p.Reserve1.Set(r1)
	fwd.LnRate = newFwd
	rev.LnRate = -newFwd

	if !isFinite(oldFwd) {
		// The pool had no valid rate yet (zero reserves at load); deltas are
		// meaningless, so affected cycles are resummed instead.
		e.resumAffected(fwd.Index)
		e.resumAffected(rev.Index)
		return nil
	}

	delta := newFwd - oldFwd
	e.applyDelta(fwd.Index, delta)
	e.applyDelta(rev.Index, -delta)
	return nil
}

// applyDelta adds delta to every cycle traversing the swap and marks them
// dirty.
func (e *RateEngine) applyDelta(swapIdx int, delta float64) {
	for _, ci := range e.cycles.ForSwap(swapIdx) {
		c := e.cycles.At(ci)
		c.LnRate += delta
		c.Dirty = true
		e.dirty.Add(ci)
	}
}

// resumAffected recomputes the sums of cycles traversing the swap from their
// legs and marks them dirty.
func (e *RateEngine) resumAffected(swapIdx int) {
	for _, ci := range e.cycles.ForSwap(swapIdx) {
		c := e.cycles.At(ci)
		c.LnRate = sumLegs(c)
		c.Dirty = true
		e.dirty.Add(ci)
	}
}

// Rebuild recomputes every swap rate from reserves and every cycle sum from
// its legs, discarding accumulated floating-point drift. Dirty flags are
// left as they are.
func (e *RateEngine) Rebuild() {
	for _, s := range e.market.Swaps() {
		s.LnRate = lnRate(s.ReserveIn(), s.ReserveOut())
	}
	for _, c := range e.cycles.Cycles() {
		c.LnRate = sumLegs(c)
	}
}

// Dirty reports whether the cycle at index ci awaits requoting.
func (e *RateEngine) Dirty(ci int) bool {
	return e.dirty.Contains(ci)
}

// DirtyCount returns the number of cycles awaiting requoting.
func (e *RateEngine) DirtyCount() int {
	return e.dirty.Cardinality()
}

// DirtySlice returns the dirty cycle indices in ascending order.
func (e *RateEngine) DirtySlice() []int {
	out := e.dirty.ToSlice()
	sort.Ints(out)
	return out
}

// ClearDirty marks the cycle at index ci as quoted.
func (e *RateEngine) ClearDirty(ci int) {
	e.cycles.At(ci).Dirty = false
	e.dirty.Remove(ci)
}

// sumLegs computes a cycle's ln rate from scratch.
func sumLegs(c *cycle.Cycle) float64 {
	var sum float64
	for _, s := range c.Swaps() {
		sum += s.LnRate
	}
	return sum
}

// lnRate returns ln(rOut/rIn) as a difference of logs, which stays finite for
// any positive 256-bit reserves. A zero reserve on either side maps to -Inf
// so the cycle can never look profitable.
func lnRate(rIn, rOut *uint256.Int) float64 {
	if rIn.IsZero() || rOut.IsZero() {
		return math.Inf(-1)
	}
	fin, _ := new(big.Float).SetInt(rIn.ToBig()).Float64()
	fout, _ := new(big.Float).SetInt(rOut.ToBig()).Float64()
	return math.Log(fout) - math.Log(fin)
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}
