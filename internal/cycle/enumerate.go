package cycle

import (
	"bytes"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/market"
)

// Enumerator discovers all simple cycles of length 2..MaxLength in a market.
// It runs offline: the token graph is sparse but hub-dominated, so the search
// is a bounded depth-first walk over outgoing swaps rather than anything
// cleverer.
type Enumerator struct {
	// MaxLength bounds cycle length; values outside [MinLength, MaxLength]
	// are clamped.
	MaxLength int
}

// Enumerate returns every simple cycle up to the configured length, each in
// canonical rotation and each emitted exactly once. A cycle is generated only
// from the rotation starting at its smallest pool address, so no two
// rotations of the same sequence are ever produced; the id set is a guard
// against that invariant regressing.
func (e *Enumerator) Enumerate(m *market.Market) []*Cycle {
	maxLen := e.MaxLength
	if maxLen < MinLength {
		maxLen = MinLength
	}
	if maxLen > MaxLength {
		maxLen = MaxLength
	}

	seen := mapset.NewThreadUnsafeSet[common.Hash]()
	var found []*Cycle

	walk := &walker{market: m, maxLen: maxLen}
	for _, start := range m.Swaps() {
		walk.start = start
		walk.path = walk.path[:0]
		walk.dfs(start, func(legs []Leg) {
			c, err := New(legs)
			if err != nil {
				return
			}
			if seen.Contains(c.ID()) {
				return
			}
			seen.Add(c.ID())
			found = append(found, c)
		})
	}
	return found
}

// walker carries the mutable DFS state for one start swap.
type walker struct {
	market *market.Market
	maxLen int
	start  *market.Swap
	path   []*market.Swap
}

// dfs extends the path with s and recurses over outgoing swaps of s's output
// token. Every pool after the start must compare greater than the start pool,
// which both keeps pools distinct against the start and pins the canonical
// rotation.
func (w *walker) dfs(s *market.Swap, emit func([]Leg)) {
	w.path = append(w.path, s)
	defer func() { w.path = w.path[:len(w.path)-1] }()

	if s.TokenOut() == w.start.TokenIn() && len(w.path) >= MinLength {
		legs := make([]Leg, len(w.path))
		for i, ps := range w.path {
			legs[i] = Leg{Pool: ps.Pool.Address, Direction: ps.Direction}
		}
		emit(legs)
		// A closed path is never extended: that would revisit the start token.
		return
	}
	if len(w.path) == w.maxLen {
		return
	}

	for _, idx := range w.market.Outgoing(s.TokenOut().Address) {
		next := w.market.SwapAt(idx)
		if bytes.Compare(next.Pool.Address[:], w.start.Pool.Address[:]) <= 0 {
			continue
		}
		if w.onPath(next.Pool.Address) {
			continue
		}
		w.dfs(next, emit)
	}
}

// onPath reports whether a pool is already traversed by the current path.
func (w *walker) onPath(pool common.Address) bool {
	for _, s := range w.path {
		if s.Pool.Address == pool {
			return true
		}
	}
	return false
}
