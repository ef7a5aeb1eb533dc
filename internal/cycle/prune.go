package cycle

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/davyros/arbcycle/internal/market"
)

// Valuer prices every reachable token in units of a reference token (the
// wrapped native, typically) by walking spot rates breadth-first from the
// reference. Rates are floating point: the valuer feeds a coarse liquidity
// filter, not trade sizing.
type Valuer struct {
	values map[common.Address]float64
}

// NewValuer builds token valuations for the market. The first (fewest-hop)
// path to a token wins; deeper paths through thin pools would only add noise.
func NewValuer(m *market.Market, ref common.Address) *Valuer {
	v := &Valuer{values: make(map[common.Address]float64)}
	v.values[ref] = 1

	queue := []common.Address{ref}
	for len(queue) > 0 {
		token := queue[0]
		queue = queue[1:]
		base := v.values[token]

		for _, idx := range m.Outgoing(token) {
			s := m.SwapAt(idx)
			out := s.TokenOut().Address
			if _, ok := v.values[out]; ok {
				continue
			}
			rIn := reserveFloat(s.ReserveIn())
			rOut := reserveFloat(s.ReserveOut())
			if rIn <= 0 || rOut <= 0 {
				continue
			}
			// One unit of the output token trades for rIn/rOut input units.
			val := base * rIn / rOut
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			v.values[out] = val
			queue = append(queue, out)
		}
	}
	return v
}

// TokenValue returns the reference-unit value of one raw unit of the token.
func (v *Valuer) TokenValue(token common.Address) (float64, bool) {
	val, ok := v.values[token]
	return val, ok
}

// PoolValue returns the pool's total reserves converted to reference units.
// Unreachable tokens value as unknown.
func (v *Valuer) PoolValue(p *market.Pool) (float64, bool) {
	v0, ok0 := v.values[p.Token0.Address]
	v1, ok1 := v.values[p.Token1.Address]
	if !ok0 || !ok1 {
		return 0, false
	}
	return v0*reserveFloat(&p.Reserve0) + v1*reserveFloat(&p.Reserve1), true
}

func reserveFloat(r *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(r.ToBig()).Float64()
	return f
}

// Pruner selects pools too thin to ever clear gas. It runs offline alongside
// the enumerator; the caller deletes the returned pools from the pool store
// and their cycles from the cycle store.
type Pruner struct {
	// ReferenceToken anchors valuation; MinPoolReserveRef is the cutoff in
	// raw reference-token units.
	ReferenceToken    common.Address
	MinPoolReserveRef float64
}

// Prune returns the addresses of pools whose total value in reference units
// is below the threshold, or whose tokens cannot be valued at all.
func (p *Pruner) Prune(m *market.Market) []common.Address {
	valuer := NewValuer(m, p.ReferenceToken)

	var out []common.Address
	for _, pool := range m.Pools() {
		val, ok := valuer.PoolValue(pool)
		if !ok || val < p.MinPoolReserveRef {
			out = append(out, pool.Address)
		}
	}
	return out
}
