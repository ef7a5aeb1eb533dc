package memory

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/pkg/types"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func desc(pool, token0, token1 byte) types.PoolDescriptor {
	return types.PoolDescriptor{
		Address:  addr(pool),
		Factory:  addr(0xFA),
		Token0:   addr(token0),
		Token1:   addr(token1),
		FeeBps:   30,
		Reserve0: big.NewInt(1000),
		Reserve1: big.NewInt(1000),
	}
}

func mustCycle(t *testing.T, legs ...cycle.Leg) *cycle.Cycle {
	t.Helper()
	c, err := cycle.New(legs)
	if err != nil {
		t.Fatalf("cycle.New: %v", err)
	}
	return c
}

func TestCycleStoreInsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewCycleStore()

	c := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	rotated := mustCycle(t,
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
	)

	if err := s.Insert(ctx, c); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, rotated); err != nil {
		t.Fatalf("insert rotation: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1 (rotations share canonical form)", n)
	}
}

func TestCycleStoreInsertBatchCountsNew(t *testing.T) {
	ctx := context.Background()
	s := NewCycleStore()

	c1 := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	c2 := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionReverse},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionReverse},
	)

	n, err := s.InsertBatch(ctx, []*cycle.Cycle{c1, c2, c1})
	if err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}
}

func TestCycleStoreDeleteContaining(t *testing.T) {
	ctx := context.Background()
	s := NewCycleStore()

	keep := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
	)
	drop := mustCycle(t,
		cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
		cycle.Leg{Pool: addr(0x33), Direction: types.DirectionForward},
	)
	if _, err := s.InsertBatch(ctx, []*cycle.Cycle{keep, drop}); err != nil {
		t.Fatalf("insert batch: %v", err)
	}

	if err := s.DeleteContaining(ctx, addr(0x33)); err != nil {
		t.Fatalf("delete containing: %v", err)
	}

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 1 || got[0].ID() != keep.ID() {
		t.Fatalf("got %d cycles after delete, want the untouched one", len(got))
	}
}

// Persisting then reloading must reproduce the same inverted index as adding
// the original cycles directly.
func TestCycleStoreRoundTripRebuildsIndex(t *testing.T) {
	ctx := context.Background()

	m, err := market.New([]types.PoolDescriptor{
		desc(0x11, 0xA0, 0xB0),
		desc(0x22, 0xB0, 0xA0),
		desc(0x33, 0xB0, 0xC0),
		desc(0x44, 0xC0, 0xA0),
	}, nil)
	if err != nil {
		t.Fatalf("market.New: %v", err)
	}

	originals := []*cycle.Cycle{
		mustCycle(t,
			cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
			cycle.Leg{Pool: addr(0x22), Direction: types.DirectionForward},
		),
		mustCycle(t,
			cycle.Leg{Pool: addr(0x11), Direction: types.DirectionForward},
			cycle.Leg{Pool: addr(0x33), Direction: types.DirectionForward},
			cycle.Leg{Pool: addr(0x44), Direction: types.DirectionForward},
		),
	}

	direct := cycle.NewSet(m)
	for _, c := range originals {
		if err := direct.Add(c); err != nil {
			t.Fatalf("direct add: %v", err)
		}
	}

	s := NewCycleStore()
	if _, err := s.InsertBatch(ctx, originals); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}

	reloaded := cycle.NewSet(m)
	for _, c := range loaded {
		if err := reloaded.Add(c); err != nil {
			t.Fatalf("reloaded add: %v", err)
		}
	}

	if direct.Len() != reloaded.Len() {
		t.Fatalf("set sizes differ: %d vs %d", direct.Len(), reloaded.Len())
	}
	for _, sw := range m.Swaps() {
		a, b := direct.ForSwap(sw.Index), reloaded.ForSwap(sw.Index)
		if len(a) == 0 && len(b) == 0 {
			continue
		}
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("inverted index differs at swap %d: %v vs %v", sw.Index, a, b)
		}
	}
}

func TestPoolStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewPoolStore()

	if err := s.UpsertFactories(ctx, []types.Factory{
		{Address: addr(0xFA), Name: "uniswap-v2", FeeBps: 30, Version: "v2"},
	}); err != nil {
		t.Fatalf("upsert factories: %v", err)
	}
	if err := s.UpsertTokens(ctx, []types.Token{
		{Address: addr(0xA0), Symbol: "WETH", Decimals: 18},
		{Address: addr(0xB0), Symbol: "USDC", Decimals: 6},
	}); err != nil {
		t.Fatalf("upsert tokens: %v", err)
	}

	pool := desc(0x11, 0xA0, 0xB0)
	pool.FeeBps = 0 // resolved from factory on list
	if err := s.UpsertPools(ctx, []types.PoolDescriptor{pool}); err != nil {
		t.Fatalf("upsert pools: %v", err)
	}

	pools, err := s.ListPools(ctx)
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("len(pools) = %d, want 1", len(pools))
	}
	if pools[0].FeeBps != 30 {
		t.Fatalf("FeeBps = %d, want 30 from factory", pools[0].FeeBps)
	}

	if err := s.UpdateReserves(ctx, 5, []types.PoolDescriptor{{
		Address:  addr(0x11),
		Reserve0: big.NewInt(7777),
		Reserve1: big.NewInt(8888),
	}}); err != nil {
		t.Fatalf("update reserves: %v", err)
	}
	pools, _ = s.ListPools(ctx)
	if pools[0].Reserve0.Int64() != 7777 {
		t.Fatalf("Reserve0 = %s, want 7777", pools[0].Reserve0)
	}

	if err := s.DeletePool(ctx, addr(0x11)); err != nil {
		t.Fatalf("delete pool: %v", err)
	}
	if err := s.DeletePool(ctx, addr(0x11)); err != storage.ErrNotFound {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}

	tokens, err := s.ListTokens(ctx)
	if err != nil {
		t.Fatalf("list tokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0].Symbol != "WETH" {
		t.Fatalf("tokens = %+v", tokens)
	}
}

func TestPoolStoreRejectsConflictingPairListing(t *testing.T) {
	ctx := context.Background()
	s := NewPoolStore()

	if err := s.UpsertPools(ctx, []types.PoolDescriptor{desc(0x11, 0xA0, 0xB0)}); err != nil {
		t.Fatalf("upsert pools: %v", err)
	}
	// Re-listing the same address is a plain reserve refresh.
	if err := s.UpsertPools(ctx, []types.PoolDescriptor{desc(0x11, 0xA0, 0xB0)}); err != nil {
		t.Fatalf("re-upsert same address: %v", err)
	}

	// A different address claiming the same (factory, token0, token1).
	err := s.UpsertPools(ctx, []types.PoolDescriptor{desc(0x22, 0xA0, 0xB0)})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("conflicting listing = %v, want ErrDuplicateKey", err)
	}

	// Deleting the listed pool frees the pair.
	if err := s.DeletePool(ctx, addr(0x11)); err != nil {
		t.Fatalf("delete pool: %v", err)
	}
	if err := s.UpsertPools(ctx, []types.PoolDescriptor{desc(0x22, 0xA0, 0xB0)}); err != nil {
		t.Fatalf("upsert after delete: %v", err)
	}
}

func TestPoolStoreRejectsNilReserves(t *testing.T) {
	ctx := context.Background()
	s := NewPoolStore()

	broken := desc(0x11, 0xA0, 0xB0)
	broken.Reserve1 = nil
	if err := s.UpsertPools(ctx, []types.PoolDescriptor{broken}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("upsert with nil reserve = %v, want ErrInvalidInput", err)
	}

	if err := s.UpsertPools(ctx, []types.PoolDescriptor{desc(0x11, 0xA0, 0xB0)}); err != nil {
		t.Fatalf("upsert pools: %v", err)
	}
	err := s.UpdateReserves(ctx, 5, []types.PoolDescriptor{{Address: addr(0x11), Reserve0: big.NewInt(1)}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("update with nil reserve = %v, want ErrInvalidInput", err)
	}
}
