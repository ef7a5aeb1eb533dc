package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/internal/config"
	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/eth"
	"github.com/davyros/arbcycle/internal/ingest"
	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/internal/output"
	"github.com/davyros/arbcycle/internal/storage/migrations"
	"github.com/davyros/arbcycle/internal/storage/postgres"
	"github.com/davyros/arbcycle/pkg/types"
)

// seed maintains the offline side of the hunter: pair discovery, liquidity
// pruning and cycle enumeration. Run it before starting the hunter and again
// whenever the tracked pool set should be refreshed.
func main() {
	mode := flag.String("mode", "all", "discover | prune | cycles | all")
	factoryFlag := flag.String("factory", ingest.UniswapV2Factory.Hex(), "factory address for discovery")
	fromBlock := flag.Uint64("from", 0, "first block for discovery")
	toBlock := flag.Uint64("to", 0, "last block for discovery")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	output.NewLogger(cfg.Logging)

	ctx := context.Background()

	pg, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer pg.Close()

	if err := migrations.RunPostgresMigrations(ctx, pg); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply postgres migrations")
	}

	poolStore := postgres.NewPoolStore(pg)
	cycleStore := postgres.NewCycleStore(pg)

	switch *mode {
	case "discover":
		err = discover(ctx, cfg, poolStore, common.HexToAddress(*factoryFlag), *fromBlock, *toBlock)
	case "prune":
		err = prune(ctx, cfg, poolStore, cycleStore)
	case "cycles":
		err = enumerate(ctx, cfg, poolStore, cycleStore)
	case "all":
		if err = prune(ctx, cfg, poolStore, cycleStore); err == nil {
			err = enumerate(ctx, cfg, poolStore, cycleStore)
		}
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", *mode).Msg("Seed failed")
	}
}

// discover pulls PairCreated logs from a factory, resolves token metadata and
// upserts everything into the pool store.
func discover(ctx context.Context, cfg *config.Config, poolStore *postgres.PoolStore, factory common.Address, fromBlock, toBlock uint64) error {
	client, err := eth.NewClient(cfg.RPC)
	if err != nil {
		return err
	}
	defer client.Close()

	if toBlock == 0 {
		toBlock, err = client.BlockNumber(ctx)
		if err != nil {
			return err
		}
	}

	d := ingest.NewDiscovery(client)
	pools, err := d.DiscoverPairs(ctx, factory, fromBlock, toBlock)
	if err != nil {
		return err
	}

	if err := poolStore.UpsertFactories(ctx, []types.Factory{{
		Address: factory,
		Name:    "uniswap-v2",
		FeeBps:  cfg.Engine.DefaultFeeBps(),
		Version: "v2",
	}}); err != nil {
		return err
	}

	var tokens []types.Token
	seen := make(map[common.Address]bool)
	for _, p := range pools {
		for _, addr := range []common.Address{p.Token0, p.Token1} {
			if seen[addr] {
				continue
			}
			seen[addr] = true
			token, err := d.TokenMetadata(ctx, addr)
			if err != nil {
				log.Warn().Err(err).Str("token", addr.Hex()).Msg("Failed to fetch token metadata")
				token = types.Token{Address: addr}
			}
			tokens = append(tokens, token)
		}
	}

	if err := poolStore.UpsertTokens(ctx, tokens); err != nil {
		return err
	}
	if err := poolStore.UpsertPools(ctx, pools); err != nil {
		return err
	}

	log.Info().Int("pools", len(pools)).Int("tokens", len(tokens)).Msg("Discovery complete")
	return nil
}

// prune drops pools below the liquidity threshold, with their cycles.
func prune(ctx context.Context, cfg *config.Config, poolStore *postgres.PoolStore, cycleStore *postgres.CycleStore) error {
	m, err := loadMarket(ctx, poolStore)
	if err != nil {
		return err
	}

	threshold, err := strconv.ParseFloat(cfg.Enumerator.MinPoolReserveRef, 64)
	if err != nil {
		return fmt.Errorf("invalid min_pool_reserve_ref: %w", err)
	}

	pruner := &cycle.Pruner{
		ReferenceToken:    common.HexToAddress(cfg.Enumerator.ReferenceToken),
		MinPoolReserveRef: threshold,
	}

	doomed := pruner.Prune(m)
	for _, addr := range doomed {
		if err := cycleStore.DeleteContaining(ctx, addr); err != nil {
			return err
		}
		if err := poolStore.DeletePool(ctx, addr); err != nil {
			return err
		}
	}

	log.Info().
		Int("pruned", len(doomed)).
		Int("remaining", m.NumPools()-len(doomed)).
		Msg("Prune complete")
	return nil
}

// enumerate discovers all cycles in the surviving pool set and persists them.
func enumerate(ctx context.Context, cfg *config.Config, poolStore *postgres.PoolStore, cycleStore *postgres.CycleStore) error {
	m, err := loadMarket(ctx, poolStore)
	if err != nil {
		return err
	}

	e := &cycle.Enumerator{MaxLength: cfg.Enumerator.MaxCycleLength}
	cycles := e.Enumerate(m)

	inserted, err := cycleStore.InsertBatch(ctx, cycles)
	if err != nil {
		return err
	}

	log.Info().
		Int("found", len(cycles)).
		Int("inserted", inserted).
		Msg("Enumeration complete")
	return nil
}

// loadMarket builds an in-memory market from the pool store.
func loadMarket(ctx context.Context, poolStore *postgres.PoolStore) (*market.Market, error) {
	pools, err := poolStore.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := poolStore.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	return market.New(pools, tokens)
}
