package engine

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/internal/cycle"
	"github.com/davyros/arbcycle/internal/market"
	"github.com/davyros/arbcycle/pkg/types"
)

// Config is the engine tuning surface, passed at construction. No process
// globals.
type Config struct {
	// MaxSwapFractionBps caps quoted input against each leg's reserve.
	MaxSwapFractionBps uint64
	// RebuildIntervalBlocks triggers a full log-rate resync every N applied
	// blocks; 0 disables.
	RebuildIntervalBlocks uint64
	// QuoteBudget bounds the wall-clock time one Update may spend quoting.
	QuoteBudget time.Duration
}

// DefaultConfig returns the production defaults: 1% impact clamp, resync
// every 1024 blocks, 1.6 s budget (80% of the 2 s block target).
func DefaultConfig() Config {
	return Config{
		MaxSwapFractionBps:    100,
		RebuildIntervalBlocks: 1024,
		QuoteBudget:           1600 * time.Millisecond,
	}
}

// State is the world's position in the per-block machine.
type State uint8

const (
	StateUninitialized State = iota
	StateIdle
	StateApplying
	StateQuoting
	StateEmitting
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateApplying:
		return "applying"
	case StateQuoting:
		return "quoting"
	case StateEmitting:
		return "emitting"
	}
	return "unknown"
}

// World owns the market, the cycle set and the rate engine, and drives the
// per-block pipeline: apply reserve changes, walk the inverted index, quote
// the dirty cycles with positive ln rate, emit sorted quotes. One Update runs
// at a time; a second caller is rejected with ErrBusy.
type World struct {
	cfg    Config
	quoter *Quoter

	mu     sync.Mutex
	state  State
	market *market.Market
	cycles *cycle.Set
	rates  *RateEngine

	blocksSinceRebuild uint64
	leftover           []int // dirty cycles a partial quote pass did not reach
}

// NewWorld creates an uninitialized world.
func NewWorld(cfg Config) *World {
	return &World{
		cfg:    cfg,
		quoter: NewQuoter(cfg.MaxSwapFractionBps),
		state:  StateUninitialized,
	}
}

// Init builds the market from pool descriptors, loads the persisted cycles
// and seeds every rate. Duplicate pool addresses fail with ErrDuplicatePool;
// a cycle that does not fit the market fails with ErrInvariantViolation.
func (w *World) Init(pools []types.PoolDescriptor, tokens []types.Token, cycles []*cycle.Cycle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	m, err := market.New(pools, tokens)
	if err != nil {
		return fmt.Errorf("build market: %w", err)
	}

	set := cycle.NewSet(m)
	for _, c := range cycles {
		if err := set.Add(c); err != nil {
			return fmt.Errorf("load cycle: %w", err)
		}
	}

	w.market = m
	w.cycles = set
	w.rates = NewRateEngine(m, set)
	w.rates.Rebuild()
	w.blocksSinceRebuild = 0
	w.leftover = nil
	w.state = StateIdle

	log.Info().
		Int("pools", m.NumPools()).
		Int("cycles", set.Len()).
		Msg("World initialized")
	return nil
}

// Market returns the pool graph. Read-only for callers.
func (w *World) Market() *market.Market {
	return w.market
}

// Cycles returns the loaded cycle set. Read-only for callers.
func (w *World) Cycles() *cycle.Set {
	return w.cycles
}

// State returns the current machine state.
func (w *World) State() State {
	return w.state
}

// Update applies one block's reserve batch and returns the profitable cycle
// quotes consistent with the post-batch snapshot. Unknown pools are skipped
// and recorded; a zero reserve invalidates only the offending pool. When the
// quote budget expires the result is flagged Partial and the unvisited dirty
// cycles are carried into the next invocation, which quotes them first.
func (w *World) Update(block uint64, changes []types.PoolDescriptor) (*types.WorldUpdate, error) {
	if !w.mu.TryLock() {
		return nil, ErrBusy
	}
	defer w.mu.Unlock()

	if w.state == StateUninitialized {
		return nil, ErrUninitialized
	}

	start := time.Now()
	deadline := start.Add(w.cfg.QuoteBudget)
	upd := &types.WorldUpdate{Block: block}

	w.state = StateApplying
	w.apply(changes, upd)

	w.blocksSinceRebuild++
	if w.cfg.RebuildIntervalBlocks > 0 && w.blocksSinceRebuild >= w.cfg.RebuildIntervalBlocks {
		w.rates.Rebuild()
		w.blocksSinceRebuild = 0
		log.Debug().Uint64("block", block).Msg("Cycle rates rebuilt")
	}

	w.state = StateQuoting
	w.quoteDirty(deadline, upd)

	w.state = StateEmitting
	sort.Slice(upd.Quotes, func(i, j int) bool {
		if c := upd.Quotes[i].Profit.Cmp(upd.Quotes[j].Profit); c != 0 {
			return c > 0
		}
		return bytes.Compare(upd.Quotes[i].CycleID, upd.Quotes[j].CycleID) < 0
	})
	upd.Elapsed = time.Since(start)

	w.state = StateIdle
	return upd, nil
}

// apply pushes the batch into the rate engine, recording skipped pools.
func (w *World) apply(changes []types.PoolDescriptor, upd *types.WorldUpdate) {
	for _, d := range changes {
		p, ok := w.market.Pool(d.Address)
		if !ok {
			upd.UnknownPools = append(upd.UnknownPools, d.Address)
			log.Debug().Str("pool", d.Address.Hex()).Msg("Update for unknown pool skipped")
			continue
		}

		r0, r1 := toUint256(d.Reserve0), toUint256(d.Reserve1)
		if err := w.rates.SetReserves(p, r0, r1); err != nil {
			if errors.Is(err, market.ErrZeroReserve) {
				upd.ZeroReservePools = append(upd.ZeroReservePools, d.Address)
				log.Debug().Str("pool", d.Address.Hex()).Msg("Zero-reserve update skipped")
				continue
			}
			log.Error().Err(err).Str("pool", d.Address.Hex()).Msg("Reserve update failed")
			continue
		}
		upd.Applied++
	}
}

// quoteDirty visits the dirty cycles, leftover from a previous partial pass
// first, quoting those with positive ln rate until done or out of budget.
func (w *World) quoteDirty(deadline time.Time, upd *types.WorldUpdate) {
	order := w.quoteOrder()
	upd.TouchedCycles = len(order)

	for i, ci := range order {
		if time.Now().After(deadline) {
			upd.Partial = true
			w.leftover = append([]int(nil), order[i:]...)
			log.Warn().
				Int("remaining", len(w.leftover)).
				Msg("Quote budget expired, deferring dirty cycles")
			return
		}

		c := w.cycles.At(ci)
		if c.LnRate > 0 {
			if q, ok := w.quoter.Quote(c); ok {
				upd.Quotes = append(upd.Quotes, *q)
			}
		}
		w.rates.ClearDirty(ci)
	}
	w.leftover = nil
}

// quoteOrder lists the dirty cycle indices to visit: the previous partial
// pass's remainder first, then the newly touched cycles in index order.
func (w *World) quoteOrder() []int {
	if len(w.leftover) == 0 {
		return w.rates.DirtySlice()
	}

	carried := make(map[int]struct{}, len(w.leftover))
	order := make([]int, 0, w.rates.DirtyCount())
	for _, ci := range w.leftover {
		if w.rates.Dirty(ci) {
			order = append(order, ci)
			carried[ci] = struct{}{}
		}
	}
	for _, ci := range w.rates.DirtySlice() {
		if _, ok := carried[ci]; !ok {
			order = append(order, ci)
		}
	}
	return order
}

// toUint256 converts a descriptor reserve, treating nil and out-of-range as
// zero so the zero-reserve guard rejects it.
func toUint256(v *big.Int) *uint256.Int {
	if v == nil || v.Sign() < 0 {
		return new(uint256.Int)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int)
	}
	return u
}
