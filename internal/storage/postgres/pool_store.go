package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/pkg/types"
)

// PoolStore implements storage.PoolStore using PostgreSQL. Reserves are
// NUMERIC(78,0) and cross the wire as decimal strings; pool fees resolve
// from the owning factory at list time.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// UpsertFactories inserts or replaces factories.
func (s *PoolStore) UpsertFactories(ctx context.Context, factories []types.Factory) error {
	batch := &pgx.Batch{}
	for _, f := range factories {
		batch.Queue(`
			INSERT INTO factories (address, name, fee_bps, version)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (address) DO UPDATE
			SET name = EXCLUDED.name, fee_bps = EXCLUDED.fee_bps, version = EXCLUDED.version
		`, f.Address.Hex(), f.Name, int32(f.FeeBps), f.Version)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert factories: %w", err)
	}
	return nil
}

// UpsertTokens inserts or replaces token metadata.
func (s *PoolStore) UpsertTokens(ctx context.Context, tokens []types.Token) error {
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`
			INSERT INTO tokens (address, symbol, name, decimals)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (address) DO UPDATE
			SET symbol = EXCLUDED.symbol, name = EXCLUDED.name, decimals = EXCLUDED.decimals
		`, t.Address.Hex(), t.Symbol, t.Name, int32(t.Decimals))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert tokens: %w", err)
	}
	return nil
}

// UpsertPools inserts or replaces pools with their current reserves. A second
// address claiming an already-listed (factory, token0, token1) pair violates
// pair uniqueness and maps to ErrDuplicateKey.
func (s *PoolStore) UpsertPools(ctx context.Context, pools []types.PoolDescriptor) error {
	batch := &pgx.Batch{}
	for _, p := range pools {
		if p.Reserve0 == nil || p.Reserve1 == nil {
			return fmt.Errorf("upsert pool %s: nil reserve: %w", p.Address.Hex(), storage.ErrInvalidInput)
		}
		batch.Queue(`
			INSERT INTO pools (address, factory_address, token0, token1, reserve0, reserve1)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric)
			ON CONFLICT (address) DO UPDATE
			SET reserve0 = EXCLUDED.reserve0, reserve1 = EXCLUDED.reserve1
		`, p.Address.Hex(), p.Factory.Hex(), p.Token0.Hex(), p.Token1.Hex(),
			p.Reserve0.String(), p.Reserve1.String())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("upsert pools: %w", storage.ErrDuplicateKey)
		}
		return fmt.Errorf("upsert pools: %w", err)
	}
	return nil
}

// UpdateReserves checkpoints one block's reserve batch; unknown pools are
// ignored by the WHERE clause.
func (s *PoolStore) UpdateReserves(ctx context.Context, block uint64, changes []types.PoolDescriptor) error {
	batch := &pgx.Batch{}
	for _, c := range changes {
		if c.Reserve0 == nil || c.Reserve1 == nil {
			return fmt.Errorf("update reserves for %s: nil reserve: %w", c.Address.Hex(), storage.ErrInvalidInput)
		}
		batch.Queue(`
			UPDATE pools
			SET reserve0 = $2::numeric, reserve1 = $3::numeric, updated_block = $4
			WHERE address = $1
		`, c.Address.Hex(), c.Reserve0.String(), c.Reserve1.String(), int64(block))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update reserves at block %d: %w", block, err)
	}
	return nil
}

// ListFactories returns factories ordered by address.
func (s *PoolStore) ListFactories(ctx context.Context) ([]types.Factory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, name, fee_bps, version FROM factories ORDER BY address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list factories: %w", err)
	}
	defer rows.Close()

	var out []types.Factory
	for rows.Next() {
		var (
			f       types.Factory
			addrHex string
			feeBps  int32
		)
		if err := rows.Scan(&addrHex, &f.Name, &feeBps, &f.Version); err != nil {
			return nil, fmt.Errorf("scan factory: %w", err)
		}
		f.Address = common.HexToAddress(addrHex)
		f.FeeBps = uint16(feeBps)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListTokens returns tokens ordered by address.
func (s *PoolStore) ListTokens(ctx context.Context) ([]types.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, symbol, name, decimals FROM tokens ORDER BY address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []types.Token
	for rows.Next() {
		var (
			t        types.Token
			addrHex  string
			decimals int32
		)
		if err := rows.Scan(&addrHex, &t.Symbol, &t.Name, &decimals); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		t.Address = common.HexToAddress(addrHex)
		t.Decimals = uint8(decimals)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListPools returns pool descriptors ordered by address, joining the factory
// for the fee; pools of unregistered factories default to 30 bps.
func (s *PoolStore) ListPools(ctx context.Context) ([]types.PoolDescriptor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.address, p.factory_address, p.token0, p.token1,
		       p.reserve0::text, p.reserve1::text, COALESCE(f.fee_bps, 30)
		FROM pools p
		LEFT JOIN factories f ON f.address = p.factory_address
		ORDER BY p.address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var out []types.PoolDescriptor
	for rows.Next() {
		var d types.PoolDescriptor
		var addrHex, facHex, t0Hex, t1Hex, r0Str, r1Str string
		var feeBps int32
		if err := rows.Scan(&addrHex, &facHex, &t0Hex, &t1Hex, &r0Str, &r1Str, &feeBps); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		d.Address = common.HexToAddress(addrHex)
		d.Factory = common.HexToAddress(facHex)
		d.Token0 = common.HexToAddress(t0Hex)
		d.Token1 = common.HexToAddress(t1Hex)
		d.FeeBps = uint16(feeBps)
		d.Reserve0 = parseReserve(r0Str)
		d.Reserve1 = parseReserve(r1Str)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeletePool removes a pruned pool; deleting an absent pool is ErrNotFound.
func (s *PoolStore) DeletePool(ctx context.Context, pool common.Address) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pools WHERE address = $1`, pool.Hex())
	if err != nil {
		return fmt.Errorf("delete pool %s: %w", pool.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func parseReserve(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
