package ingest

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/davyros/arbcycle/internal/eth"
	"github.com/davyros/arbcycle/pkg/types"
)

// Uniswap V2 Sync event signature
// event Sync(uint112 reserve0, uint112 reserve1)
var SyncEventSignature = common.HexToHash("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1")

// Harvester turns raw Sync logs into per-block reserve batches for the world.
type Harvester struct {
	client *eth.Client
}

// NewHarvester creates a new Sync log harvester
func NewHarvester(client *eth.Client) *Harvester {
	return &Harvester{client: client}
}

// BlockBatch holds one block's final reserve state for every touched pool.
type BlockBatch struct {
	Block   uint64
	Changes []types.PoolDescriptor
}

// ParseSyncLog decodes a single Sync log into a reserve change
func ParseSyncLog(lg ethtypes.Log) (types.PoolDescriptor, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != SyncEventSignature {
		return types.PoolDescriptor{}, fmt.Errorf("not a Uniswap V2 sync event")
	}
	if len(lg.Data) < 64 {
		return types.PoolDescriptor{}, fmt.Errorf("invalid sync log data length: expected 64 bytes, got %d", len(lg.Data))
	}

	return types.PoolDescriptor{
		Address:  lg.Address,
		Reserve0: new(big.Int).SetBytes(lg.Data[0:32]),
		Reserve1: new(big.Int).SetBytes(lg.Data[32:64]),
	}, nil
}

// HarvestRange fetches all Sync logs in [fromBlock, toBlock] and collapses
// them to the last write per pool per block. Batches come back in ascending
// block order with changes sorted by pool address.
func (h *Harvester) HarvestRange(ctx context.Context, fromBlock, toBlock uint64) ([]BlockBatch, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(fromBlock)),
		ToBlock:   big.NewInt(int64(toBlock)),
		Topics: [][]common.Hash{
			{SyncEventSignature},
		},
	}

	logs, err := h.client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync logs: %w", err)
	}

	return CollapseSyncLogs(logs)
}

// CollapseSyncLogs groups Sync logs by block, keeping only the last Sync per
// pool within each block. Logs arrive ordered by block and log index, so a
// plain overwrite keeps the final state.
func CollapseSyncLogs(logs []ethtypes.Log) ([]BlockBatch, error) {
	byBlock := make(map[uint64]map[common.Address]types.PoolDescriptor)
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		change, err := ParseSyncLog(lg)
		if err != nil {
			return nil, err
		}
		pools, ok := byBlock[lg.BlockNumber]
		if !ok {
			pools = make(map[common.Address]types.PoolDescriptor)
			byBlock[lg.BlockNumber] = pools
		}
		pools[lg.Address] = change
	}

	blocks := make([]uint64, 0, len(byBlock))
	for block := range byBlock {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	batches := make([]BlockBatch, 0, len(blocks))
	for _, block := range blocks {
		pools := byBlock[block]
		changes := make([]types.PoolDescriptor, 0, len(pools))
		for _, change := range pools {
			changes = append(changes, change)
		}
		sort.Slice(changes, func(i, j int) bool {
			return changes[i].Address.Cmp(changes[j].Address) < 0
		})
		batches = append(batches, BlockBatch{Block: block, Changes: changes})
	}

	return batches, nil
}
