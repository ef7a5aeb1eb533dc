package cycle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func desc(pool, token0, token1 byte, r0, r1 int64) types.PoolDescriptor {
	return types.PoolDescriptor{
		Address:  addr(pool),
		Factory:  addr(0xFA),
		Token0:   addr(token0),
		Token1:   addr(token1),
		FeeBps:   30,
		Reserve0: big.NewInt(r0),
		Reserve1: big.NewInt(r1),
	}
}

// triangleMarket is A-B (0x11), B-C (0x22), C-A (0x33) plus a second A-B pool
// at 0x44 with token order flipped.
func triangleMarket(t *testing.T) *market.Market {
	t.Helper()
	m, err := market.New([]types.PoolDescriptor{
		desc(0x11, 0xA0, 0xB0, 1000, 2000),
		desc(0x22, 0xB0, 0xC0, 1000, 1000),
		desc(0x33, 0xC0, 0xA0, 1000, 1000),
		desc(0x44, 0xB0, 0xA0, 1000, 2100),
	}, nil)
	require.NoError(t, err)
	return m
}

func TestNewCanonicalizesRotations(t *testing.T) {
	legs := []Leg{
		{Pool: addr(0x33), Direction: types.DirectionForward},
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x22), Direction: types.DirectionForward},
	}

	c1, err := New(legs)
	require.NoError(t, err)
	c2, err := New(append(legs[1:], legs[0]))
	require.NoError(t, err)
	c3, err := New(append(legs[2:], legs[:2]...))
	require.NoError(t, err)

	assert.Equal(t, c1.ID(), c2.ID())
	assert.Equal(t, c1.ID(), c3.ID())
	assert.Equal(t, addr(0x11), c1.Legs()[0].Pool)
	assert.Equal(t, c1.Legs(), c2.Legs())
}

func TestNewDistinguishesDirections(t *testing.T) {
	fwd, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x44), Direction: types.DirectionForward},
	})
	require.NoError(t, err)
	rev, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionReverse},
		{Pool: addr(0x44), Direction: types.DirectionReverse},
	})
	require.NoError(t, err)

	assert.NotEqual(t, fwd.ID(), rev.ID())
}

func TestNewRejectsDuplicatePool(t *testing.T) {
	_, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x11), Direction: types.DirectionReverse},
	})
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestNewRejectsBadLength(t *testing.T) {
	_, err := New([]Leg{{Pool: addr(0x11)}})
	require.ErrorIs(t, err, ErrInvariantViolation)

	legs := make([]Leg, MaxLength+1)
	for i := range legs {
		legs[i] = Leg{Pool: addr(byte(i + 1))}
	}
	_, err = New(legs)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestSetAddBuildsInvertedIndex(t *testing.T) {
	m := triangleMarket(t)
	s := NewSet(m)

	tri, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x22), Direction: types.DirectionForward},
		{Pool: addr(0x33), Direction: types.DirectionForward},
	})
	require.NoError(t, err)
	require.NoError(t, s.Add(tri))

	two, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x44), Direction: types.DirectionForward},
	})
	require.NoError(t, err)
	require.NoError(t, s.Add(two))

	require.Equal(t, 2, s.Len())
	assert.True(t, s.Contains(tri.ID()))

	// P1 forward is traversed by both cycles; P1 reverse by none.
	p1fwd, ok := m.Swap(addr(0x11), types.DirectionForward)
	require.True(t, ok)
	assert.ElementsMatch(t, []int{0, 1}, s.ForSwap(p1fwd.Index))
	assert.Empty(t, s.ForSwap(p1fwd.Index^1))

	// Legs resolve in order.
	swaps := tri.Swaps()
	require.Len(t, swaps, 3)
	assert.Equal(t, addr(0x11), swaps[0].Pool.Address)
	assert.Equal(t, addr(0x22), swaps[1].Pool.Address)
}

func TestSetAddRejectsDuplicateCanonical(t *testing.T) {
	m := triangleMarket(t)
	s := NewSet(m)

	legs := []Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x44), Direction: types.DirectionForward},
	}
	c1, err := New(legs)
	require.NoError(t, err)
	require.NoError(t, s.Add(c1))

	// Same cycle handed in as the other rotation.
	c2, err := New([]Leg{legs[1], legs[0]})
	require.NoError(t, err)
	require.ErrorIs(t, s.Add(c2), ErrInvariantViolation)
	assert.Equal(t, 1, s.Len())
}

func TestSetAddRejectsUnknownPool(t *testing.T) {
	m := triangleMarket(t)
	s := NewSet(m)

	c, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x99), Direction: types.DirectionForward},
	})
	require.NoError(t, err)
	require.ErrorIs(t, s.Add(c), ErrInvariantViolation)
}

func TestSetAddRejectsBrokenChain(t *testing.T) {
	m := triangleMarket(t)
	s := NewSet(m)

	// P1 forward ends in B, P2 reverse starts in C.
	c, err := New([]Leg{
		{Pool: addr(0x11), Direction: types.DirectionForward},
		{Pool: addr(0x22), Direction: types.DirectionReverse},
	})
	require.NoError(t, err)
	require.ErrorIs(t, s.Add(c), ErrInvariantViolation)
}
