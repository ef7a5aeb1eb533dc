package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/storage"
)

// CycleStore is the in-memory storage.CycleStore, for tests and for running
// the daemon without a database.
type CycleStore struct {
	mu     sync.RWMutex
	order  []common.Hash
	cycles map[common.Hash]*cycle.Cycle
}

// NewCycleStore creates an empty store.
func NewCycleStore() *CycleStore {
	return &CycleStore{cycles: make(map[common.Hash]*cycle.Cycle)}
}

// Compile-time interface check.
var _ storage.CycleStore = (*CycleStore)(nil)

// LoadAll returns stored cycles in insertion order. Cycles are rebuilt from
// their legs so callers get unbound copies.
func (s *CycleStore) LoadAll(_ context.Context) ([]*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*cycle.Cycle, 0, len(s.order))
	for _, id := range s.order {
		c, err := cycle.New(s.cycles[id].Legs())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Insert stores the cycle, idempotently on canonical form.
func (s *CycleStore) Insert(_ context.Context, c *cycle.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(c)
	return nil
}

// InsertBatch stores many cycles and returns how many were new.
func (s *CycleStore) InsertBatch(_ context.Context, cs []*cycle.Cycle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range cs {
		if s.insert(c) {
			n++
		}
	}
	return n, nil
}

func (s *CycleStore) insert(c *cycle.Cycle) bool {
	if _, ok := s.cycles[c.ID()]; ok {
		return false
	}
	s.cycles[c.ID()] = c
	s.order = append(s.order, c.ID())
	return true
}

// DeleteContaining removes every cycle traversing the pool.
func (s *CycleStore) DeleteContaining(_ context.Context, pool common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := s.order[:0]
	for _, id := range s.order {
		if traverses(s.cycles[id], pool) {
			delete(s.cycles, id)
			continue
		}
		keep = append(keep, id)
	}
	s.order = keep
	return nil
}

// Count returns the number of stored cycles.
func (s *CycleStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func traverses(c *cycle.Cycle, pool common.Address) bool {
	for _, l := range c.Legs() {
		if l.Pool == pool {
			return true
		}
	}
	return false
}
