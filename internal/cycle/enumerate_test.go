package cycle

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

func TestEnumerateTriangleMarket(t *testing.T) {
	m := triangleMarket(t)
	e := &Enumerator{MaxLength: 3}
	found := e.Enumerate(m)

	// Two-pool cycles between the two A-B venues, one per direction. Four
	// triangles: both orientations times the choice of A-B venue.
	byLen := map[int]int{}
	ids := map[common.Hash]bool{}
	for _, c := range found {
		byLen[c.Len()]++
		require.False(t, ids[c.ID()], "cycle emitted twice")
		ids[c.ID()] = true
	}
	assert.Equal(t, 2, byLen[2])
	assert.Equal(t, 4, byLen[3])

	// Every result must survive set insertion: chained, distinct, canonical.
	s := NewSet(m)
	for _, c := range found {
		require.NoError(t, s.Add(c))
		assert.Equal(t, c.Legs()[0].Pool, canonicalize(c.Legs())[0].Pool)
	}
}

func TestEnumerateLengthTwoOnly(t *testing.T) {
	m := triangleMarket(t)
	e := &Enumerator{MaxLength: 2}
	found := e.Enumerate(m)

	require.Len(t, found, 2)
	for _, c := range found {
		assert.Equal(t, 2, c.Len())
	}
}

func TestEnumerateNoCycles(t *testing.T) {
	// A-B and B-C alone admit no closed path: there is no C-A venue.
	m := marketFrom(t,
		desc(0x11, 0xA0, 0xB0, 1000, 2000),
		desc(0x22, 0xB0, 0xC0, 1000, 1000),
	)
	e := &Enumerator{MaxLength: 3}
	assert.Empty(t, e.Enumerate(m))
}

func TestPrunerDropsThinPools(t *testing.T) {
	// Token A is the reference. Pool 0x11 holds 2000 A total value-ish;
	// pool 0x22 (B-C) is valued through B at ~2 A per B, so its value is
	// large; pool 0x55 is dust.
	m := marketFrom(t,
		desc(0x11, 0xA0, 0xB0, 1000, 2000), // 1 B ~ 0.5 A
		desc(0x22, 0xB0, 0xC0, 1000, 1000),
		desc(0x55, 0xA0, 0xD0, 3, 3),
	)

	p := &Pruner{ReferenceToken: addr(0xA0), MinPoolReserveRef: 100}
	pruned := p.Prune(m)
	assert.ElementsMatch(t, []common.Address{addr(0x55)}, pruned)
}

func TestPrunerDropsUnvaluedPools(t *testing.T) {
	// D-E is disconnected from the reference token.
	m := marketFrom(t,
		desc(0x11, 0xA0, 0xB0, 1000, 2000),
		desc(0x66, 0xD0, 0xE0, 1000, 1000),
	)

	p := &Pruner{ReferenceToken: addr(0xA0), MinPoolReserveRef: 100}
	pruned := p.Prune(m)
	assert.ElementsMatch(t, []common.Address{addr(0x66)}, pruned)
}

func TestValuerWalksSpotRates(t *testing.T) {
	m := marketFrom(t,
		desc(0x11, 0xA0, 0xB0, 1000, 2000), // 1 B = 0.5 A
		desc(0x22, 0xB0, 0xC0, 1000, 4000), // 1 C = 0.25 B = 0.125 A
	)

	v := NewValuer(m, addr(0xA0))

	va, ok := v.TokenValue(addr(0xA0))
	require.True(t, ok)
	assert.InDelta(t, 1.0, va, 1e-12)

	vb, ok := v.TokenValue(addr(0xB0))
	require.True(t, ok)
	assert.InDelta(t, 0.5, vb, 1e-12)

	vc, ok := v.TokenValue(addr(0xC0))
	require.True(t, ok)
	assert.InDelta(t, 0.125, vc, 1e-12)

	p, _ := m.Pool(addr(0x11))
	val, ok := v.PoolValue(p)
	require.True(t, ok)
	assert.InDelta(t, 2000, val, 1e-9)
}

func marketFrom(t *testing.T, descs ...types.PoolDescriptor) *market.Market {
	t.Helper()
	m, err := market.New(descs, nil)
	require.NoError(t, err)
	return m
}
