package market

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/davyros/arbcycle/pkg/types"
)

// Market is the in-memory pool graph. Pools and tokens are interned at
// construction and shared read-only afterwards, so equality is pointer
// identity. Swap indices are stable for the life of the market: pool i owns
// swaps 2i (forward) and 2i+1 (reverse), with pools ordered by address.
type Market struct {
	pools    map[common.Address]*Pool
	tokens   map[common.Address]*types.Token
	poolList []*Pool
	swaps    []*Swap
	outgoing map[common.Address][]int // token -> swap indices consuming it
}

// New builds a market from fully populated pool descriptors. Token metadata is
// optional: tokens referenced by pools but absent from meta are interned with
// the address alone. Duplicate pool addresses fail with ErrDuplicatePool.
func New(descs []types.PoolDescriptor, meta []types.Token) (*Market, error) {
	m := &Market{
		pools:    make(map[common.Address]*Pool, len(descs)),
		tokens:   make(map[common.Address]*types.Token),
		poolList: make([]*Pool, 0, len(descs)),
		swaps:    make([]*Swap, 0, 2*len(descs)),
		outgoing: make(map[common.Address][]int),
	}

	for i := range meta {
		t := meta[i]
		m.tokens[t.Address] = &t
	}

	sorted := make([]types.PoolDescriptor, len(descs))
	copy(sorted, descs)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Address[:], sorted[j].Address[:]) < 0
	})

	for _, d := range sorted {
		if _, ok := m.pools[d.Address]; ok {
			return nil, fmt.Errorf("pool %s: %w", d.Address.Hex(), ErrDuplicatePool)
		}

		p := &Pool{
			Address: d.Address,
			Factory: d.Factory,
			Token0:  m.internToken(d.Token0),
			Token1:  m.internToken(d.Token1),
			FeeBps:  d.FeeBps,
			index:   len(m.poolList),
		}
		if err := setReserve(&p.Reserve0, d.Reserve0); err != nil {
			return nil, fmt.Errorf("pool %s reserve0: %w", d.Address.Hex(), err)
		}
		if err := setReserve(&p.Reserve1, d.Reserve1); err != nil {
			return nil, fmt.Errorf("pool %s reserve1: %w", d.Address.Hex(), err)
		}

		m.pools[d.Address] = p
		m.poolList = append(m.poolList, p)

		fwd := &Swap{Pool: p, Direction: types.DirectionForward, Index: len(m.swaps)}
		rev := &Swap{Pool: p, Direction: types.DirectionReverse, Index: len(m.swaps) + 1}
		m.swaps = append(m.swaps, fwd, rev)

		m.outgoing[p.Token0.Address] = append(m.outgoing[p.Token0.Address], fwd.Index)
		m.outgoing[p.Token1.Address] = append(m.outgoing[p.Token1.Address], rev.Index)
	}

	return m, nil
}

// internToken returns the shared token object for addr, creating a bare one
// if no metadata was provided.
func (m *Market) internToken(addr common.Address) *types.Token {
	if t, ok := m.tokens[addr]; ok {
		return t
	}
	t := &types.Token{Address: addr}
	m.tokens[addr] = t
	return t
}

// setReserve copies a descriptor reserve into pool state. Nil is treated as
// zero; values beyond 256 bits are rejected (V2 reserves fit 112).
func setReserve(dst *uint256.Int, src *big.Int) error {
	if src == nil {
		dst.Clear()
		return nil
	}
	if src.Sign() < 0 {
		return fmt.Errorf("negative reserve %s", src)
	}
	if overflow := dst.SetFromBig(src); overflow {
		return fmt.Errorf("reserve %s exceeds 256 bits", src)
	}
	return nil
}

// Pool returns the pool at addr, if present.
func (m *Market) Pool(addr common.Address) (*Pool, bool) {
	p, ok := m.pools[addr]
	return p, ok
}

// Token returns the interned token at addr, if any pool references it.
func (m *Market) Token(addr common.Address) (*types.Token, bool) {
	t, ok := m.tokens[addr]
	return t, ok
}

// Pools returns all pools ordered by address.
func (m *Market) Pools() []*Pool {
	return m.poolList
}

// Swaps returns the dense swap table.
func (m *Market) Swaps() []*Swap {
	return m.swaps
}

// SwapAt returns the swap at dense index i.
func (m *Market) SwapAt(i int) *Swap {
	return m.swaps[i]
}

// Swap resolves a (pool, direction) pair to its swap.
func (m *Market) Swap(pool common.Address, dir types.Direction) (*Swap, bool) {
	p, ok := m.pools[pool]
	if !ok {
		return nil, false
	}
	return m.swaps[2*p.index+int(dir)], true
}

// Outgoing returns the indices of swaps whose input token is token.
func (m *Market) Outgoing(token common.Address) []int {
	return m.outgoing[token]
}

// NumPools returns the pool count.
func (m *Market) NumPools() int {
	return len(m.poolList)
}
