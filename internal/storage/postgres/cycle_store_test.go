package postgres

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/pkg/types"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func mustCycle(t *testing.T, legs ...cycle.Leg) *cycle.Cycle {
	t.Helper()
	c, err := cycle.New(legs)
	require.NoError(t, err)
	return c
}

func TestCycleStoreRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	s := NewCycleStore(pool)
	ctx := context.Background()

	two := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	three := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x33), Direction: types.DirectionReverse},
		cycle.Leg{Pool: addr(0x44), Direction: types.DirectionForward},
	)

	n, err := s.InsertBatch(ctx, []*cycle.Cycle{two, three})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Insertion order, canonical legs, directions intact.
	assert.Equal(t, two.ID(), loaded[0].ID())
	assert.Equal(t, three.ID(), loaded[1].ID())
	assert.Equal(t, two.Legs(), loaded[0].Legs())
	assert.Equal(t, three.Legs(), loaded[1].Legs())
}

func TestCycleStoreInsertIdempotentOnCanonicalForm(t *testing.T) {
	pool := setupTestDB(t)
	s := NewCycleStore(pool)
	ctx := context.Background()

	c := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	rotation := mustCycle(t,
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
	)

	require.NoError(t, s.Insert(ctx, c))
	require.NoError(t, s.Insert(ctx, rotation))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCycleStoreDeleteContaining(t *testing.T) {
	pool := setupTestDB(t)
	s := NewCycleStore(pool)
	ctx := context.Background()

	keep := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	drop1 := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x33), Direction: types.DirectionForward},
	)
	drop2 := mustCycle(t,
		cycle.Leg{Pool: addr(0x33), Direction: types.DirectionReverse},
		cycle.Leg{Pool: addr(0x44), Direction: types.DirectionForward},
	)
	_, err := s.InsertBatch(ctx, []*cycle.Cycle{keep, drop1, drop2})
	require.NoError(t, err)

	require.NoError(t, s.DeleteContaining(ctx, addr(0x33)))

	loaded, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, keep.ID(), loaded[0].ID())

	// Cascade removed the orphaned legs too.
	var legs int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM cycle_swaps`).Scan(&legs))
	assert.Equal(t, 2, legs)
}
