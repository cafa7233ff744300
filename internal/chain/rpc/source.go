package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"ChainScope-Agent/internal/chain"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/mcp"
	"ChainScope-Agent/internal/units"
	"ChainScope-Agent/pkg/logger"
)

// Tools served directly from chain RPC endpoints.
const (
	ToolNativeBalance = "get_native_balance"
	ToolBlockNumber   = "get_block_number"
)

// Dialer opens an ethclient for a chain.
type Dialer func(ctx context.Context, ch chain.Chain) (*ethclient.Client, error)

// Source exposes JSON-RPC backed tools for every catalogue chain that has an
// rpc_url. Clients are dialled lazily and reused.
type Source struct {
	catalog *chain.Catalog
	dial    Dialer

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// Option customises a Source.
type Option func(*Source)

// WithDialer replaces the default network dialer.
func WithDialer(d Dialer) Option {
	return func(s *Source) {
		if d != nil {
			s.dial = d
		}
	}
}

// NewSource builds a Source for the given catalogue.
func NewSource(catalog *chain.Catalog, opts ...Option) *Source {
	if catalog == nil {
		catalog = chain.Default()
	}
	s := &Source{
		catalog: catalog,
		dial:    dialRPC,
		clients: make(map[string]*ethclient.Client),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func dialRPC(ctx context.Context, ch chain.Chain) (*ethclient.Client, error) {
	url := strings.TrimSpace(ch.RPCURL)
	if url == "" {
		return nil, fmt.Errorf("链 %s 未配置 RPC 地址", ch.ID)
	}
	client, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("连接链 %s 节点失败: %w", ch.ID, err)
	}
	return ethclient.NewClient(client), nil
}

// Enabled reports whether any catalogue chain has an RPC endpoint.
func (s *Source) Enabled() bool {
	for _, ch := range s.catalog.All() {
		if strings.TrimSpace(ch.RPCURL) != "" {
			return true
		}
	}
	return false
}

// ListTools implements mcp.Source.
func (s *Source) ListTools(context.Context) ([]mcp.Tool, error) {
	chainIDs := map[string]any{
		"type":        "string",
		"description": "Chain id, one of " + strings.Join(s.catalog.IDs(), ", "),
	}
	return []mcp.Tool{
		{
			Name:        ToolNativeBalance,
			Description: "Native coin balance of an address, read from the chain RPC endpoint.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chain_id": chainIDs,
					"address":  map[string]any{"type": "string", "description": "0x-prefixed address"},
				},
				"required": []string{"chain_id", "address"},
			},
		},
		{
			Name:        ToolBlockNumber,
			Description: "Latest block number and network chain id, read from the chain RPC endpoint.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"chain_id": chainIDs},
				"required":   []string{"chain_id"},
			},
		},
	}, nil
}

// CallTool implements mcp.Source.
func (s *Source) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	id := argString(args, "chain_id")
	ch, ok := s.catalog.Lookup(id)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的链 %q", id))
	}
	client, err := s.client(ctx, ch)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "初始化链客户端失败")
	}

	switch name {
	case ToolNativeBalance:
		address := argString(args, "address")
		if !common.IsHexAddress(address) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("无效的地址 %q", address))
		}
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "查询余额失败")
		}
		return map[string]any{"data": map[string]any{
			"chain_id":    ch.ID,
			"address":     common.HexToAddress(address).Hex(),
			"balance_wei": balance.String(),
			"balance_eth": units.FormatEther(balance),
		}}, nil
	case ToolBlockNumber:
		networkID, err := client.ChainID(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "获取链 ID 失败")
		}
		block, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "获取最新区块高度失败")
		}
		return map[string]any{"data": map[string]any{
			"chain_id":         ch.ID,
			"network_chain_id": networkID.String(),
			"block_number":     strconv.FormatUint(block, 10),
			"block_number_hex": toHexBig(new(big.Int).SetUint64(block)),
		}}, nil
	default:
		return nil, xerrors.New(xerrors.CodeToolNotFound, fmt.Sprintf("Tool %q not found", name))
	}
}

func (s *Source) client(ctx context.Context, ch chain.Chain) (*ethclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[ch.ID]; ok {
		return c, nil
	}
	c, err := s.dial(ctx, ch)
	if err != nil {
		return nil, err
	}
	logger.Named("rpc").Debug("已连接链节点", slog.String("chain_id", ch.ID))
	s.clients[ch.ID] = c
	return c, nil
}

// Close releases every dialled client.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
	return nil
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
