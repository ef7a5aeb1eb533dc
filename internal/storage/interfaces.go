package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/pkg/types"
)

// CycleStore persists candidate cycles across runs. The hot path never
// touches it: cycles are loaded once at startup and written offline by the
// enumerator.
type CycleStore interface {
	// LoadAll returns every cycle in insertion order, legs sorted by
	// position. A stored cycle that fails validation surfaces
	// cycle.ErrInvariantViolation.
	LoadAll(ctx context.Context) ([]*cycle.Cycle, error)

	// Insert persists one cycle, idempotently on its canonical form.
	Insert(ctx context.Context, c *cycle.Cycle) error

	// InsertBatch persists many cycles and returns how many were new.
	InsertBatch(ctx context.Context, cs []*cycle.Cycle) (int, error)

	// DeleteContaining removes every cycle traversing the pool.
	DeleteContaining(ctx context.Context, pool common.Address) error

	// Count returns the number of stored cycles.
	Count(ctx context.Context) (int, error)
}

// PoolStore persists the pool graph: factories, tokens and pools with their
// last known reserves, so the daemon can boot without replaying the chain.
type PoolStore interface {
	UpsertFactories(ctx context.Context, factories []types.Factory) error
	UpsertTokens(ctx context.Context, tokens []types.Token) error
	UpsertPools(ctx context.Context, pools []types.PoolDescriptor) error

	// UpdateReserves checkpoints one block's reserve batch.
	UpdateReserves(ctx context.Context, block uint64, changes []types.PoolDescriptor) error

	ListFactories(ctx context.Context) ([]types.Factory, error)
	ListTokens(ctx context.Context) ([]types.Token, error)

	// ListPools returns descriptors with the fee resolved from the pool's
	// factory.
	ListPools(ctx context.Context) ([]types.PoolDescriptor, error)

	// DeletePool removes a pruned pool.
	DeletePool(ctx context.Context, pool common.Address) error
}

// QuoteHistory is an append-only sink of emitted quotes for offline
// analysis.
type QuoteHistory interface {
	InsertQuotes(ctx context.Context, block uint64, quotes []types.CycleQuote) error
	Close() error
}
