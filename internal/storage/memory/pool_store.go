package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/pkg/types"
)

// PoolStore is the in-memory storage.PoolStore.
type PoolStore struct {
	mu        sync.RWMutex
	factories map[common.Address]types.Factory
	tokens    map[common.Address]types.Token
	pools     map[common.Address]types.PoolDescriptor
	pairs     map[pairKey]common.Address
}

// pairKey identifies the one pair a factory may list for a token pair.
type pairKey struct {
	factory, token0, token1 common.Address
}

// NewPoolStore creates an empty store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		factories: make(map[common.Address]types.Factory),
		tokens:    make(map[common.Address]types.Token),
		pools:     make(map[common.Address]types.PoolDescriptor),
		pairs:     make(map[pairKey]common.Address),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// UpsertFactories stores or replaces factories.
func (s *PoolStore) UpsertFactories(_ context.Context, factories []types.Factory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range factories {
		s.factories[f.Address] = f
	}
	return nil
}

// UpsertTokens stores or replaces token metadata.
func (s *PoolStore) UpsertTokens(_ context.Context, tokens []types.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.tokens[t.Address] = t
	}
	return nil
}

// UpsertPools stores or replaces pool descriptors. A second address claiming
// an already-listed (factory, token0, token1) pair is ErrDuplicateKey.
func (s *PoolStore) UpsertPools(_ context.Context, pools []types.PoolDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pools {
		if p.Reserve0 == nil || p.Reserve1 == nil {
			return fmt.Errorf("upsert pool %s: nil reserve: %w", p.Address.Hex(), storage.ErrInvalidInput)
		}
		key := pairKey{factory: p.Factory, token0: p.Token0, token1: p.Token1}
		if listed, ok := s.pairs[key]; ok && listed != p.Address {
			return fmt.Errorf("upsert pools: %w", storage.ErrDuplicateKey)
		}
		s.pairs[key] = p.Address
		s.pools[p.Address] = copyDescriptor(p)
	}
	return nil
}

// UpdateReserves checkpoints reserves for known pools; unknown addresses are
// ignored.
func (s *PoolStore) UpdateReserves(_ context.Context, _ uint64, changes []types.PoolDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if c.Reserve0 == nil || c.Reserve1 == nil {
			return fmt.Errorf("update reserves for %s: nil reserve: %w", c.Address.Hex(), storage.ErrInvalidInput)
		}
		p, ok := s.pools[c.Address]
		if !ok {
			continue
		}
		p.Reserve0 = copyBig(c.Reserve0)
		p.Reserve1 = copyBig(c.Reserve1)
		s.pools[c.Address] = p
	}
	return nil
}

// ListFactories returns factories ordered by address.
func (s *PoolStore) ListFactories(_ context.Context) ([]types.Factory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Factory, 0, len(s.factories))
	for _, f := range s.factories {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Address, out[j].Address) })
	return out, nil
}

// ListTokens returns tokens ordered by address.
func (s *PoolStore) ListTokens(_ context.Context) ([]types.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Address, out[j].Address) })
	return out, nil
}

// ListPools returns pool descriptors ordered by address, fee resolved from
// the factory when one is registered.
func (s *PoolStore) ListPools(_ context.Context) ([]types.PoolDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.PoolDescriptor, 0, len(s.pools))
	for _, p := range s.pools {
		d := copyDescriptor(p)
		if f, ok := s.factories[p.Factory]; ok {
			d.FeeBps = f.FeeBps
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Address, out[j].Address) })
	return out, nil
}

// DeletePool removes the pool; deleting an absent pool is ErrNotFound.
func (s *PoolStore) DeletePool(_ context.Context, pool common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[pool]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.pairs, pairKey{factory: p.Factory, token0: p.Token0, token1: p.Token1})
	delete(s.pools, pool)
	return nil
}

func less(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func copyDescriptor(p types.PoolDescriptor) types.PoolDescriptor {
	p.Reserve0 = copyBig(p.Reserve0)
	p.Reserve1 = copyBig(p.Reserve1)
	return p
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
