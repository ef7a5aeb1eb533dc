package cycle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/market"
)

// Set is the runtime cycle collection: a contiguous array of cycles plus the
// inverted index from dense swap index to the cycles traversing that swap.
// The index is what makes per-block updates cheap: a reserve change touches
// only the cycles listed under the pool's two swaps.
//
// The Set is built once at startup and read-only afterwards; its memory cost
// is the sum of cycle lengths.
type Set struct {
	market *market.Market
	cycles []*Cycle
	bySwap [][]int // dense swap index -> indices into cycles
	byID   map[common.Hash]int
}

// NewSet creates an empty set bound to a market.
func NewSet(m *market.Market) *Set {
	return &Set{
		market: m,
		bySwap: make([][]int, len(m.Swaps())),
		byID:   make(map[common.Hash]int),
	}
}

// Add binds a cycle to the market, verifies its invariants and indexes it.
// A broken token chain, an unknown pool or a duplicate canonical id all fail
// with ErrInvariantViolation: the set is loaded from trusted storage, so any
// of these means corrupt data.
func (s *Set) Add(c *Cycle) error {
	if _, ok := s.byID[c.id]; ok {
		return fmt.Errorf("duplicate canonical cycle %s: %w", c.id.Hex(), ErrInvariantViolation)
	}
	if err := c.bind(s.market); err != nil {
		return err
	}

	idx := len(s.cycles)
	s.cycles = append(s.cycles, c)
	s.byID[c.id] = idx
	for _, sw := range c.swaps {
		s.bySwap[sw.Index] = append(s.bySwap[sw.Index], idx)
	}
	return nil
}

// Len returns the number of cycles.
func (s *Set) Len() int {
	return len(s.cycles)
}

// At returns the cycle at index i.
func (s *Set) At(i int) *Cycle {
	return s.cycles[i]
}

// Cycles returns the underlying cycle array in load order.
func (s *Set) Cycles() []*Cycle {
	return s.cycles
}

// ForSwap returns the indices of cycles traversing the swap at dense index
// swapIdx. Callers must not mutate the returned slice.
func (s *Set) ForSwap(swapIdx int) []int {
	return s.bySwap[swapIdx]
}

// Contains reports whether a cycle with the given canonical id is present.
func (s *Set) Contains(id common.Hash) bool {
	_, ok := s.byID[id]
	return ok
}
