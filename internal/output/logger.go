package output

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/internal/config"
	"github.com/davyros/arbcycle/pkg/types"
)

// Logger handles output formatting for detected arbitrage opportunities
type Logger struct {
	stats *Stats
}

// Stats tracks hunter statistics
type Stats struct {
	BlocksProcessed uint64
	UpdatesApplied  uint64
	CyclesQuoted    uint64
	ProfitableFound uint64
	PartialUpdates  uint64
	TotalProfit     *big.Int
	StartTime       time.Time
}

// NewLogger creates a new hunter logger
func NewLogger(cfg config.LoggingConfig) *Logger {
	// Configure zerolog
	switch cfg.Format {
	case "json":
		// Default JSON output
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	// Set log level
	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}

	return &Logger{
		stats: &Stats{
			TotalProfit: big.NewInt(0),
			StartTime:   time.Now(),
		},
	}
}

// LogUpdate logs the outcome of applying one block's reserve changes
func (l *Logger) LogUpdate(update *types.WorldUpdate) {
	l.stats.BlocksProcessed++
	l.stats.UpdatesApplied += uint64(update.Applied)
	l.stats.CyclesQuoted += uint64(update.TouchedCycles)
	l.stats.ProfitableFound += uint64(len(update.Quotes))
	if update.Partial {
		l.stats.PartialUpdates++
	}

	ev := log.Info()
	if len(update.Quotes) == 0 {
		ev = log.Debug()
	}
	ev.
		Uint64("block", update.Block).
		Int("applied", update.Applied).
		Int("touchedCycles", update.TouchedCycles).
		Int("profitable", len(update.Quotes)).
		Bool("partial", update.Partial).
		Dur("duration", update.Elapsed).
		Msg("Block processed")

	if len(update.UnknownPools) > 0 {
		log.Debug().
			Uint64("block", update.Block).
			Int("count", len(update.UnknownPools)).
			Msg("Skipped reserve updates for unknown pools")
	}
	if len(update.ZeroReservePools) > 0 {
		log.Warn().
			Uint64("block", update.Block).
			Int("count", len(update.ZeroReservePools)).
			Msg("Skipped zero-reserve updates")
	}
}

// LogQuote logs a profitable cycle quote
func (l *Logger) LogQuote(block uint64, quote *types.CycleQuote) {
	l.stats.TotalProfit.Add(l.stats.TotalProfit, quote.Profit)

	log.Info().
		Uint64("block", block).
		Str("cycle", common.BytesToHash(quote.CycleID).Hex()).
		Str("amountIn", quote.AmountIn.String()).
		Str("amountOut", quote.AmountOut.String()).
		Str("profit", quote.Profit.String()).
		Int32("marginBps", quote.ProfitMarginBps).
		Str("path", buildPathString(quote.SwapQuotes)).
		Int("hops", len(quote.SwapQuotes)).
		Msg("ARBITRAGE OPPORTUNITY")
}

// LogStats logs current statistics
func (l *Logger) LogStats() {
	elapsed := time.Since(l.stats.StartTime)
	blocksPerSec := float64(l.stats.BlocksProcessed) / elapsed.Seconds()

	log.Info().
		Uint64("blocksProcessed", l.stats.BlocksProcessed).
		Uint64("updatesApplied", l.stats.UpdatesApplied).
		Uint64("cyclesQuoted", l.stats.CyclesQuoted).
		Uint64("profitableFound", l.stats.ProfitableFound).
		Uint64("partialUpdates", l.stats.PartialUpdates).
		Str("totalProfit", l.stats.TotalProfit.String()).
		Float64("blocksPerSec", blocksPerSec).
		Dur("uptime", elapsed).
		Msg("Arbitrage Hunter Stats")
}

// LogError logs an error
func (l *Logger) LogError(err error, context string) {
	log.Error().
		Err(err).
		Str("context", context).
		Msg("Error occurred")
}

// GetStats returns current statistics
func (l *Logger) GetStats() *Stats {
	return l.stats
}

// buildPathString creates a human-readable path string showing pool flow
func buildPathString(legs []types.SwapQuote) string {
	if len(legs) == 0 {
		return ""
	}

	var path string
	for i, leg := range legs {
		hop := fmt.Sprintf("%s(%s)", leg.Pool.Hex()[:10], leg.Direction)
		if i == 0 {
			path = hop
		} else {
			path += " -> " + hop
		}
	}

	return path
}
