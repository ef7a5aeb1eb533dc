package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/pkg/types"
)

// CycleStore implements storage.CycleStore using PostgreSQL. Rows split over
// two tables: cycles(id, length, canonical_hash) and
// cycle_swaps(cycle_id, position, pool_address, direction).
type CycleStore struct {
	pool *Pool
}

// NewCycleStore creates a new CycleStore.
func NewCycleStore(pool *Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CycleStore = (*CycleStore)(nil)

// LoadAll returns every stored cycle, ordered by id with legs in position
// order. A row set whose legs no longer hash to the stored canonical form
// fails with cycle.ErrInvariantViolation.
func (s *CycleStore) LoadAll(ctx context.Context) ([]*cycle.Cycle, error) {
	query := `
		SELECT c.id, c.canonical_hash, cs.pool_address, cs.direction
		FROM cycles c
		JOIN cycle_swaps cs ON cs.cycle_id = c.id
		ORDER BY c.id ASC, cs.position ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load cycles: %w", err)
	}
	defer rows.Close()

	var (
		out      []*cycle.Cycle
		legs     []cycle.Leg
		curID    int64 = -1
		curHash  string
		finalize = func() error {
			if curID < 0 {
				return nil
			}
			c, err := cycle.New(legs)
			if err != nil {
				return fmt.Errorf("cycle %d: %w", curID, err)
			}
			if c.ID() != common.HexToHash(curHash) {
				return fmt.Errorf("cycle %d: stored hash %s does not match legs: %w",
					curID, curHash, cycle.ErrInvariantViolation)
			}
			out = append(out, c)
			return nil
		}
	)

	for rows.Next() {
		var (
			id        int64
			hash      string
			poolHex   string
			direction int16
		)
		if err := rows.Scan(&id, &hash, &poolHex, &direction); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		if id != curID {
			if err := finalize(); err != nil {
				return nil, err
			}
			curID, curHash = id, hash
			legs = nil
		}
		legs = append(legs, cycle.Leg{
			Pool:      common.HexToAddress(poolHex),
			Direction: types.Direction(direction),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle rows: %w", err)
	}
	if err := finalize(); err != nil {
		return nil, err
	}
	return out, nil
}

// Insert persists one cycle, idempotently on its canonical hash.
func (s *CycleStore) Insert(ctx context.Context, c *cycle.Cycle) error {
	_, err := s.InsertBatch(ctx, []*cycle.Cycle{c})
	return err
}

// InsertBatch persists many cycles in one transaction and returns how many
// were new. Existing canonical forms are skipped via ON CONFLICT.
func (s *CycleStore) InsertBatch(ctx context.Context, cs []*cycle.Cycle) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert cycles: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, c := range cs {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO cycles (length, canonical_hash)
			VALUES ($1, $2)
			ON CONFLICT (canonical_hash) DO NOTHING
			RETURNING id
		`, c.Len(), c.ID().Hex()).Scan(&id)
		if isNotFoundError(err) {
			continue // canonical form already stored
		}
		if err != nil {
			return 0, fmt.Errorf("insert cycle %s: %w", c.ID().Hex(), err)
		}

		for pos, l := range c.Legs() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO cycle_swaps (cycle_id, position, pool_address, direction)
				VALUES ($1, $2, $3, $4)
			`, id, pos, l.Pool.Hex(), int16(l.Direction)); err != nil {
				return 0, fmt.Errorf("insert cycle %s leg %d: %w", c.ID().Hex(), pos, err)
			}
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert cycles: %w", err)
	}
	return inserted, nil
}

// DeleteContaining removes every cycle traversing the pool; legs cascade.
func (s *CycleStore) DeleteContaining(ctx context.Context, pool common.Address) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM cycles
		WHERE id IN (SELECT cycle_id FROM cycle_swaps WHERE pool_address = $1)
	`, pool.Hex())
	if err != nil {
		return fmt.Errorf("delete cycles containing %s: %w", pool.Hex(), err)
	}
	return nil
}

// Count returns the number of stored cycles.
func (s *CycleStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}
