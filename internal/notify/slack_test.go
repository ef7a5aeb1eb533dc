package notify

import (
	"context"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/davyros/arbcycle/internal/config"
	"github.com/davyros/arbcycle/pkg/types"
)

func quote(marginBps int32) *types.CycleQuote {
	return &types.CycleQuote{
		CycleID:         make([]byte, 32),
		AmountIn:        big.NewInt(100),
		AmountOut:       big.NewInt(110),
		Profit:          big.NewInt(10),
		ProfitMarginBps: marginBps,
	}
}

func TestNotifyQuotePostsAboveThreshold(t *testing.T) {
	var posted []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		posted = body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{SlackWebhookURL: srv.URL, MinProfitMarginBps: 10})
	require.NoError(t, n.NotifyQuote(context.Background(), 42, quote(50)))

	var msg slackMessage
	require.NoError(t, sonnet.Unmarshal(posted, &msg))
	assert.Contains(t, msg.Text, "block 42")
	assert.Contains(t, msg.Text, "50 bps")
}

func TestNotifyQuoteSkipsBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("webhook should not be called")
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{SlackWebhookURL: srv.URL, MinProfitMarginBps: 100})
	require.NoError(t, n.NotifyQuote(context.Background(), 42, quote(50)))
}

func TestNotifyQuoteDisabledWithoutURL(t *testing.T) {
	n := NewNotifier(config.NotifyConfig{})
	assert.False(t, n.Enabled())
	require.NoError(t, n.NotifyQuote(context.Background(), 42, quote(500)))
}

func TestNotifyQuoteReportsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(config.NotifyConfig{SlackWebhookURL: srv.URL, MinProfitMarginBps: 0})
	assert.Error(t, n.NotifyQuote(context.Background(), 42, quote(50)))
}
