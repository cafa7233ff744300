package rpc

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainScope-Agent/internal/chain"
	xerrors "ChainScope-Agent/internal/errors"
)

const holder = "0xB6C58FDB4BBffeD7B7224634AB932518a29e4C4b"

// ethService 模拟节点的 eth 命名空间。
type ethService struct {
	balance *big.Int
	head    uint64
	chainID int64
}

func (s *ethService) GetBalance(_ common.Address, _ string) *hexutil.Big {
	return (*hexutil.Big)(s.balance)
}

func (s *ethService) BlockNumber() hexutil.Uint64 { return hexutil.Uint64(s.head) }

func (s *ethService) ChainId() *hexutil.Big { return (*hexutil.Big)(big.NewInt(s.chainID)) }

func newTestSource(t *testing.T) (*Source, *int) {
	t.Helper()
	server := gethrpc.NewServer()
	t.Cleanup(server.Stop)
	balance, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.NoError(t, server.RegisterName("eth", &ethService{balance: balance, head: 21000000, chainID: 10}))

	dials := 0
	catalog, err := chain.NewCatalog([]chain.Chain{{ID: "10", Name: "Optimism", RPCURL: "inproc://optimism"}})
	require.NoError(t, err)
	source := NewSource(catalog, WithDialer(func(context.Context, chain.Chain) (*ethclient.Client, error) {
		dials++
		return ethclient.NewClient(gethrpc.DialInProc(server)), nil
	}))
	t.Cleanup(func() { _ = source.Close() })
	return source, &dials
}

func TestSourceListsTools(t *testing.T) {
	source, _ := newTestSource(t)
	assert.True(t, source.Enabled())

	tools, err := source.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, ToolNativeBalance, tools[0].Name)
	assert.Equal(t, ToolBlockNumber, tools[1].Name)

	assert.False(t, NewSource(chain.Default()).Enabled())
}

func TestSourceNativeBalance(t *testing.T) {
	source, dials := newTestSource(t)
	ctx := context.Background()

	result, err := source.CallTool(ctx, ToolNativeBalance, map[string]any{"chain_id": "10", "address": holder})
	require.NoError(t, err)
	data := result.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "1500000000000000000", data["balance_wei"])
	assert.Equal(t, "1.5", data["balance_eth"])
	assert.Equal(t, holder, data["address"])

	block, err := source.CallTool(ctx, ToolBlockNumber, map[string]any{"chain_id": float64(10)})
	require.NoError(t, err)
	head := block.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "21000000", head["block_number"])
	assert.Equal(t, "0x1406f40", head["block_number_hex"])
	assert.Equal(t, "10", head["network_chain_id"])

	assert.Equal(t, 1, *dials, "client should be reused")
}

func TestSourceRejectsBadArguments(t *testing.T) {
	source, _ := newTestSource(t)
	ctx := context.Background()

	_, err := source.CallTool(ctx, ToolNativeBalance, map[string]any{"chain_id": "10", "address": "not-an-address"})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = source.CallTool(ctx, ToolBlockNumber, map[string]any{"chain_id": "999"})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = source.CallTool(ctx, "get_gas_price", map[string]any{"chain_id": "10"})
	assert.Equal(t, xerrors.CodeToolNotFound, xerrors.CodeOf(err))
}
