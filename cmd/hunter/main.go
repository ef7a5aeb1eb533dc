package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/internal/config"
	"github.com/davyros/arbcycle/internal/engine"
	"github.com/davyros/arbcycle/internal/eth"
	"github.com/davyros/arbcycle/internal/ingest"
	"github.com/davyros/arbcycle/internal/notify"
	"github.com/davyros/arbcycle/internal/observability"
	"github.com/davyros/arbcycle/internal/output"
	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/internal/storage/clickhouse"
	"github.com/davyros/arbcycle/internal/storage/migrations"
	"github.com/davyros/arbcycle/internal/storage/postgres"
)

// Hunter is the live arbitrage hunting daemon
type Hunter struct {
	client    *eth.Client
	harvester *ingest.Harvester
	world     *engine.World
	poolStore storage.PoolStore
	history   storage.QuoteHistory
	notifier  *notify.Notifier
	logger    *output.Logger
	metrics   *observability.Metrics
	cfg       *config.Config

	lastBlock uint64
	mu        sync.Mutex
}

// NewHunter creates a new hunter and loads the world from storage
func NewHunter(ctx context.Context, cfg *config.Config, pg *postgres.Pool, history storage.QuoteHistory, logger *output.Logger) (*Hunter, error) {
	client, err := eth.NewClient(cfg.RPC)
	if err != nil {
		return nil, err
	}

	poolStore := postgres.NewPoolStore(pg)
	cycleStore := postgres.NewCycleStore(pg)

	pools, err := poolStore.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := poolStore.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	cycles, err := cycleStore.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	world := engine.NewWorld(engine.Config{
		MaxSwapFractionBps:    cfg.Engine.MaxSwapFractionBps,
		RebuildIntervalBlocks: cfg.Engine.RebuildIntervalBlocks,
		QuoteBudget:           cfg.Engine.QuoteBudget,
	})
	if err := world.Init(pools, tokens, cycles); err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	metrics.TrackedPools.Set(float64(len(pools)))
	metrics.TrackedCycles.Set(float64(len(cycles)))

	return &Hunter{
		client:    client,
		harvester: ingest.NewHarvester(client),
		world:     world,
		poolStore: poolStore,
		history:   history,
		notifier:  notify.NewNotifier(cfg.Notify),
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}, nil
}

// Start begins the hunting loop
func (h *Hunter) Start(ctx context.Context) error {
	log.Info().Msg("Starting arbitrage hunter...")

	currentBlock, err := h.client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	// Set starting block
	if h.cfg.Hunter.StartBlock > 0 {
		h.lastBlock = h.cfg.Hunter.StartBlock - 1
	} else {
		h.lastBlock = currentBlock - 1
	}

	log.Info().
		Uint64("startBlock", h.lastBlock+1).
		Uint64("currentBlock", currentBlock).
		Msg("Hunter initialized")

	// Create ticker for polling
	ticker := time.NewTicker(h.cfg.Hunter.PollInterval)
	defer ticker.Stop()

	// Stats ticker (every 30 seconds)
	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down hunter...")
			return ctx.Err()

		case <-statsTicker.C:
			h.logger.LogStats()

		case <-ticker.C:
			if err := h.processNewBlocks(ctx); err != nil {
				h.logger.LogError(err, "processing blocks")
			}
		}
	}
}

// processNewBlocks harvests and applies any new blocks
func (h *Hunter) processNewBlocks(ctx context.Context) error {
	currentBlock, err := h.client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	fromBlock := h.lastBlock + 1
	h.mu.Unlock()

	if currentBlock < fromBlock {
		return nil // No new blocks
	}

	// Process blocks in batches
	toBlock := currentBlock
	if toBlock-fromBlock > uint64(h.cfg.Hunter.BatchSize) {
		toBlock = fromBlock + uint64(h.cfg.Hunter.BatchSize) - 1
	}

	log.Debug().
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Msg("Processing block range")

	batches, err := h.harvester.HarvestRange(ctx, fromBlock, toBlock)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		if err := h.processBatch(ctx, batch); err != nil {
			h.logger.LogError(err, "applying block batch")
		}
	}

	h.mu.Lock()
	h.lastBlock = toBlock
	h.mu.Unlock()

	return nil
}

// processBatch applies one block's reserve changes and handles the quotes
func (h *Hunter) processBatch(ctx context.Context, batch ingest.BlockBatch) error {
	update, err := h.world.Update(batch.Block, batch.Changes)
	if err != nil {
		return err
	}

	h.logger.LogUpdate(update)
	h.metrics.ObserveUpdate(update)

	// Persist the post-block reserves; unknown pools are ignored by the store.
	if err := h.poolStore.UpdateReserves(ctx, batch.Block, batch.Changes); err != nil {
		h.logger.LogError(err, "persisting reserves")
	}

	for i := range update.Quotes {
		h.logger.LogQuote(update.Block, &update.Quotes[i])
		if err := h.notifier.NotifyQuote(ctx, update.Block, &update.Quotes[i]); err != nil {
			h.logger.LogError(err, "posting slack notification")
		}
	}

	if h.history != nil && len(update.Quotes) > 0 {
		if err := h.history.InsertQuotes(ctx, update.Block, update.Quotes); err != nil {
			h.logger.LogError(err, "recording quote history")
		}
	}

	return nil
}

// Close shuts down the hunter
func (h *Hunter) Close() {
	h.client.Close()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := output.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres and apply migrations
	pg, err := postgres.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	defer pg.Close()

	if err := migrations.RunPostgresMigrations(ctx, pg); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply postgres migrations")
	}

	// Optional quote-history sink
	var history storage.QuoteHistory
	if cfg.ClickHouse.DSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to clickhouse")
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply clickhouse migrations")
		}
		store := clickhouse.NewQuoteHistoryStore(conn)
		defer store.Close()
		history = store
	}

	// Create hunter
	hunter, err := NewHunter(ctx, cfg, pg, history, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create hunter")
	}
	defer hunter.Close()

	// Metrics endpoint
	metricsSrv := observability.NewServer(cfg.Hunter.MetricsAddr)
	metricsSrv.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start the hunter
	if err := hunter.Start(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Hunter error")
	}

	log.Info().Msg("Arbitrage hunter stopped")
}
