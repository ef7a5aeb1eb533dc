package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/sugawarayuuta/sonnet"

	"github.com/davyros/arbcycle/internal/config"
	"github.com/davyros/arbcycle/pkg/types"
)

// Notifier posts profitable quotes to a Slack webhook. A zero-value Notifier
// (no webhook URL) drops everything.
type Notifier struct {
	webhookURL string
	minMargin  int32
	client     *http.Client
}

type slackMessage struct {
	Text string `json:"text"`
}

// NewNotifier creates a Slack notifier from config
func NewNotifier(cfg config.NotifyConfig) *Notifier {
	return &Notifier{
		webhookURL: cfg.SlackWebhookURL,
		minMargin:  cfg.MinProfitMarginBps,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.webhookURL != ""
}

// NotifyQuote posts one profitable quote if it clears the margin threshold.
func (n *Notifier) NotifyQuote(ctx context.Context, block uint64, quote *types.CycleQuote) error {
	if !n.Enabled() || quote.ProfitMarginBps < n.minMargin {
		return nil
	}

	msg := slackMessage{
		Text: fmt.Sprintf(
			"Arbitrage opportunity at block %d\ncycle: %s\nhops: %d\namount in: %s\nprofit: %s (%d bps)",
			block,
			common.BytesToHash(quote.CycleID).Hex(),
			len(quote.SwapQuotes),
			quote.AmountIn.String(),
			quote.Profit.String(),
			quote.ProfitMarginBps,
		),
	}

	body, err := sonnet.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	log.Debug().
		Uint64("block", block).
		Str("cycle", common.BytesToHash(quote.CycleID).Hex()).
		Msg("Posted quote to Slack")

	return nil
}
