package cycle

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

// Bounds on the number of legs a cycle may carry. Two legs is the classic
// cross-pool arbitrage; anything beyond four pays more gas than the edge
// is worth.
const (
	MinLength = 2
	MaxLength = 4
)

// Leg is one directed pool traversal in a cycle.
type Leg struct {
	Pool      common.Address
	Direction types.Direction
}

// Cycle is a closed sequence of 2-4 directed swaps: the output token of each
// leg is the input token of the next, and the last leg closes back to the
// first. All pools are distinct. Legs are stored in canonical rotation (the
// smallest pool address first), so two rotations of the same trade sequence
// compare equal by ID.
//
// LnRate caches the sum of the legs' ln rates and Dirty marks the cycle for
// requoting; both are written only by the rate engine.
type Cycle struct {
	legs []Leg
	id   common.Hash

	LnRate float64
	Dirty  bool

	swaps []*market.Swap // resolved when the cycle joins a Set
}

// New builds a cycle from legs, canonicalizing the rotation and computing the
// identity hash. Length bounds and pool distinctness are enforced here; token
// chaining needs a market and is checked when the cycle is added to a Set.
func New(legs []Leg) (*Cycle, error) {
	if len(legs) < MinLength || len(legs) > MaxLength {
		return nil, fmt.Errorf("cycle length %d outside [%d, %d]: %w",
			len(legs), MinLength, MaxLength, ErrInvariantViolation)
	}
	for i := range legs {
		for j := i + 1; j < len(legs); j++ {
			if legs[i].Pool == legs[j].Pool {
				return nil, fmt.Errorf("pool %s appears twice: %w",
					legs[i].Pool.Hex(), ErrInvariantViolation)
			}
		}
	}

	canonical := canonicalize(legs)
	return &Cycle{
		legs: canonical,
		id:   hashLegs(canonical),
	}, nil
}

// canonicalize rotates legs so the smallest pool address comes first. Pools
// are distinct, so the rotation is unique.
func canonicalize(legs []Leg) []Leg {
	min := 0
	for i := 1; i < len(legs); i++ {
		if bytes.Compare(legs[i].Pool[:], legs[min].Pool[:]) < 0 {
			min = i
		}
	}
	out := make([]Leg, 0, len(legs))
	out = append(out, legs[min:]...)
	out = append(out, legs[:min]...)
	return out
}

// hashLegs derives the canonical id: Keccak-256 over the concatenated
// (pool, direction) sequence.
func hashLegs(legs []Leg) common.Hash {
	buf := make([]byte, 0, len(legs)*(common.AddressLength+1))
	for _, l := range legs {
		buf = append(buf, l.Pool[:]...)
		buf = append(buf, byte(l.Direction))
	}
	return crypto.Keccak256Hash(buf)
}

// ID returns the canonical identity hash.
func (c *Cycle) ID() common.Hash {
	return c.id
}

// Legs returns the canonical leg sequence. Callers must not mutate it.
func (c *Cycle) Legs() []Leg {
	return c.legs
}

// Len returns the number of legs.
func (c *Cycle) Len() int {
	return len(c.legs)
}

// Swaps returns the resolved market swaps, in leg order. Nil until the cycle
// has been added to a Set.
func (c *Cycle) Swaps() []*market.Swap {
	return c.swaps
}

// bind resolves legs against a market and verifies token chaining: each leg's
// output token is the next leg's input, closing back to the first.
func (c *Cycle) bind(m *market.Market) error {
	swaps := make([]*market.Swap, len(c.legs))
	for i, l := range c.legs {
		s, ok := m.Swap(l.Pool, l.Direction)
		if !ok {
			return fmt.Errorf("cycle %s references unknown pool %s: %w",
				c.id.Hex(), l.Pool.Hex(), ErrInvariantViolation)
		}
		swaps[i] = s
	}
	for i, s := range swaps {
		next := swaps[(i+1)%len(swaps)]
		if s.TokenOut() != next.TokenIn() {
			return fmt.Errorf("cycle %s breaks token chain at leg %d: %w",
				c.id.Hex(), i, ErrInvariantViolation)
		}
	}
	c.swaps = swaps
	return nil
}
