package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/davyros/arbcycle/internal/storage"
	"github.com/davyros/arbcycle/pkg/types"
)

// QuoteHistoryStore implements storage.QuoteHistory using ClickHouse. Emitted
// quotes are append-only analytics data; MergeTree without uniqueness is the
// right fit.
type QuoteHistoryStore struct {
	conn *Conn
}

// NewQuoteHistoryStore creates a new QuoteHistoryStore.
func NewQuoteHistoryStore(conn *Conn) *QuoteHistoryStore {
	return &QuoteHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.QuoteHistory = (*QuoteHistoryStore)(nil)

// Close closes the underlying connection.
func (s *QuoteHistoryStore) Close() error {
	return s.conn.Close()
}

// InsertQuotes appends one block's emitted quotes. Amounts are stored as
// decimal strings: they are 256-bit values.
func (s *QuoteHistoryStore) InsertQuotes(ctx context.Context, block uint64, quotes []types.CycleQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO quote_history (
			block, cycle_id, length, amount_in, amount_out, profit, profit_margin_bps, emitted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare quote batch: %w", err)
	}

	now := time.Now()
	for _, q := range quotes {
		err = batch.Append(
			block,
			common.BytesToHash(q.CycleID).Hex(),
			uint8(len(q.SwapQuotes)),
			q.AmountIn.String(),
			q.AmountOut.String(),
			q.Profit.String(),
			q.ProfitMarginBps,
			now,
		)
		if err != nil {
			return fmt.Errorf("append quote: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send quote batch: %w", err)
	}
	return nil
}
