package ingest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/davyros/arbcycle/internal/eth"
	"github.com/davyros/arbcycle/pkg/types"
)

// Uniswap V2 PairCreated event signature
// event PairCreated(address indexed token0, address indexed token1, address pair, uint)
var PairCreatedEventSignature = common.HexToHash("0x0d3648bd0f6ba80134a33ba9275ac585d9d315f0ad8355cddefde31afa28d0e9")

// Common Uniswap V2 factory addresses
var (
	UniswapV2Factory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	SushiswapFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
)

// Discovery finds V2 pairs on chain and fills in token metadata and reserves.
type Discovery struct {
	client     *eth.Client
	tokenCache map[common.Address]types.Token
}

// NewDiscovery creates a new pair discovery helper
func NewDiscovery(client *eth.Client) *Discovery {
	return &Discovery{
		client:     client,
		tokenCache: make(map[common.Address]types.Token),
	}
}

// DiscoverPairs fetches PairCreated logs from a factory in a block range and
// returns pool descriptors with current reserves.
func (d *Discovery) DiscoverPairs(ctx context.Context, factory common.Address, fromBlock, toBlock uint64) ([]types.PoolDescriptor, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(fromBlock)),
		ToBlock:   big.NewInt(int64(toBlock)),
		Addresses: []common.Address{factory},
		Topics: [][]common.Hash{
			{PairCreatedEventSignature},
		},
	}

	logs, err := d.client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pair created logs: %w", err)
	}

	var pools []types.PoolDescriptor
	for _, lg := range logs {
		if len(lg.Topics) < 3 || len(lg.Data) < 32 {
			log.Warn().Str("tx", lg.TxHash.Hex()).Msg("Malformed PairCreated log, skipping")
			continue
		}

		pair := common.BytesToAddress(lg.Data[12:32])
		reserve0, reserve1, err := d.GetReserves(ctx, pair)
		if err != nil {
			log.Warn().Err(err).Str("pair", pair.Hex()).Msg("Failed to fetch reserves, skipping pair")
			continue
		}

		pools = append(pools, types.PoolDescriptor{
			Address:  pair,
			Factory:  factory,
			Token0:   common.BytesToAddress(lg.Topics[1].Bytes()[12:32]),
			Token1:   common.BytesToAddress(lg.Topics[2].Bytes()[12:32]),
			Reserve0: reserve0,
			Reserve1: reserve1,
		})
	}

	log.Info().
		Str("factory", factory.Hex()).
		Uint64("fromBlock", fromBlock).
		Uint64("toBlock", toBlock).
		Int("pairs", len(pools)).
		Msg("Discovered V2 pairs")

	return pools, nil
}

// GetReserves fetches current reserves from a V2 pool
func (d *Discovery) GetReserves(ctx context.Context, poolAddress common.Address) (*big.Int, *big.Int, error) {
	// getReserves() selector: 0x0902f1ac
	data := common.Hex2Bytes("0902f1ac")

	msg := ethereum.CallMsg{
		To:   &poolAddress,
		Data: data,
	}

	result, err := d.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, nil, err
	}

	if len(result) < 64 {
		return nil, nil, fmt.Errorf("invalid getReserves response")
	}

	reserve0 := new(big.Int).SetBytes(result[0:32])
	reserve1 := new(big.Int).SetBytes(result[32:64])

	return reserve0, reserve1, nil
}

// TokenMetadata fetches and caches ERC20 metadata for a token
func (d *Discovery) TokenMetadata(ctx context.Context, address common.Address) (types.Token, error) {
	if token, ok := d.tokenCache[address]; ok {
		return token, nil
	}

	symbol, err := d.callString(ctx, address, "95d89b41") // symbol()
	if err != nil {
		return types.Token{}, fmt.Errorf("failed to get symbol: %w", err)
	}

	name, err := d.callString(ctx, address, "06fdde03") // name()
	if err != nil {
		return types.Token{}, fmt.Errorf("failed to get name: %w", err)
	}

	decimals, err := d.callDecimals(ctx, address)
	if err != nil {
		return types.Token{}, fmt.Errorf("failed to get decimals: %w", err)
	}

	token := types.Token{
		Address:  address,
		Symbol:   symbol,
		Name:     name,
		Decimals: decimals,
	}
	d.tokenCache[address] = token

	log.Debug().
		Str("token", address.Hex()).
		Str("symbol", symbol).
		Msg("Cached token metadata")

	return token, nil
}

// callString calls a no-arg string getter on a contract. Handles both the
// standard ABI-encoded dynamic string and the bytes32 variant some old tokens
// use (MKR, SAI).
func (d *Discovery) callString(ctx context.Context, address common.Address, selector string) (string, error) {
	msg := ethereum.CallMsg{
		To:   &address,
		Data: common.Hex2Bytes(selector),
	}

	result, err := d.client.CallContract(ctx, msg, nil)
	if err != nil {
		return "", err
	}

	if len(result) == 32 {
		return trimBytes32String(result), nil
	}
	if len(result) < 64 {
		return "", fmt.Errorf("invalid string response length %d", len(result))
	}

	length := new(big.Int).SetBytes(result[32:64]).Uint64()
	if 64+length > uint64(len(result)) {
		return "", fmt.Errorf("string response length %d exceeds payload", length)
	}

	return string(result[64 : 64+length]), nil
}

// callDecimals calls decimals() on an ERC20 contract
func (d *Discovery) callDecimals(ctx context.Context, address common.Address) (uint8, error) {
	// decimals() selector: 0x313ce567
	msg := ethereum.CallMsg{
		To:   &address,
		Data: common.Hex2Bytes("313ce567"),
	}

	result, err := d.client.CallContract(ctx, msg, nil)
	if err != nil {
		return 0, err
	}

	if len(result) < 32 {
		return 0, fmt.Errorf("invalid decimals response")
	}

	return uint8(new(big.Int).SetBytes(result[0:32]).Uint64()), nil
}

// trimBytes32String strips trailing zero bytes and non-printable characters
// from a bytes32-encoded string.
func trimBytes32String(b []byte) string {
	s := strings.TrimRight(string(b), "\x00")
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsPrint(r)
	})
}
