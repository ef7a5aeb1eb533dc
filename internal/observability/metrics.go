package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/pkg/types"
)

// Metrics holds the hunter's Prometheus collectors.
type Metrics struct {
	BlocksProcessed  prometheus.Counter
	ReservesApplied  prometheus.Counter
	UnknownPoolSkips prometheus.Counter
	ZeroReserveSkips prometheus.Counter
	CyclesTouched    prometheus.Counter
	ProfitableQuotes prometheus.Counter
	PartialUpdates   prometheus.Counter
	TrackedCycles    prometheus.Gauge
	TrackedPools     prometheus.Gauge
	UpdateDuration   prometheus.Histogram
}

// NewMetrics registers the hunter collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		BlocksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_blocks_processed_total",
			Help: "Blocks whose reserve changes were applied to the world.",
		}),
		ReservesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_reserves_applied_total",
			Help: "Per-pool reserve updates applied.",
		}),
		UnknownPoolSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_unknown_pool_skips_total",
			Help: "Reserve updates skipped because the pool is not tracked.",
		}),
		ZeroReserveSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_zero_reserve_skips_total",
			Help: "Reserve updates skipped because a side was zero.",
		}),
		CyclesTouched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_cycles_touched_total",
			Help: "Cycles re-quoted after reserve updates.",
		}),
		ProfitableQuotes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_profitable_quotes_total",
			Help: "Profitable cycle quotes emitted.",
		}),
		PartialUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbcycle_partial_updates_total",
			Help: "Updates cut short by the quote budget.",
		}),
		TrackedCycles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arbcycle_tracked_cycles",
			Help: "Cycles currently loaded in the world.",
		}),
		TrackedPools: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arbcycle_tracked_pools",
			Help: "Pools currently loaded in the world.",
		}),
		UpdateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbcycle_update_duration_seconds",
			Help:    "End-to-end duration of one world update.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// ObserveUpdate records one world update's outcome.
func (m *Metrics) ObserveUpdate(update *types.WorldUpdate) {
	m.BlocksProcessed.Inc()
	m.ReservesApplied.Add(float64(update.Applied))
	m.UnknownPoolSkips.Add(float64(len(update.UnknownPools)))
	m.ZeroReserveSkips.Add(float64(len(update.ZeroReservePools)))
	m.CyclesTouched.Add(float64(update.TouchedCycles))
	m.ProfitableQuotes.Add(float64(len(update.Quotes)))
	if update.Partial {
		m.PartialUpdates.Inc()
	}
	m.UpdateDuration.Observe(update.Elapsed.Seconds())
}

// Server exposes /metrics and /health over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics server on the given listen address.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
