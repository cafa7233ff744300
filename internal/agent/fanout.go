package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ChainScope-Agent/internal/analysis"
	"ChainScope-Agent/internal/blockscout"
	"ChainScope-Agent/pkg/logger"
)

var multiChainPhrases = []string{
	"across all chains",
	"all chains",
	"multiple chains",
	"every chain",
	"each chain",
	"all networks",
	"multi-chain",
	"multichain",
}

// fanOutTools 是多链查询时每条链都要调用的工具。
var fanOutTools = []string{blockscout.ToolAddressInfo, blockscout.ToolTransactions}

// IsMultiChainRequest 判断消息是否要求查询所有链。
func IsMultiChainRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range multiChainPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// fanOut 在目录中的每条链上查询同一个地址。
// 结果按目录顺序与请求时的 chain_id 关联，与完成顺序无关；失败的调用被丢弃。
func (a *Agent) fanOut(ctx context.Context, address string) []analysis.ToolCall {
	chains := a.catalog.All()
	perChain := make([][]analysis.ToolCall, len(chains))

	if a.fanOutMode == FanOutSequential {
		for i, ch := range chains {
			if i > 0 && a.fanOutDelay > 0 {
				select {
				case <-ctx.Done():
					return flatten(perChain)
				case <-time.After(a.fanOutDelay):
				}
			}
			perChain[i] = a.queryChain(ctx, ch.ID, address)
		}
		return flatten(perChain)
	}

	var g errgroup.Group
	for i, ch := range chains {
		g.Go(func() error {
			perChain[i] = a.queryChain(ctx, ch.ID, address)
			return nil
		})
	}
	_ = g.Wait()
	return flatten(perChain)
}

func (a *Agent) queryChain(ctx context.Context, chainID, address string) []analysis.ToolCall {
	log := logger.Named("agent")
	var calls []analysis.ToolCall
	for _, tool := range fanOutTools {
		args := map[string]any{"address": address, "chain_id": chainID}
		callCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
		result, err := a.tools.Call(callCtx, tool, args)
		cancel()
		if err != nil {
			log.Warn("多链查询失败", slog.String("tool", tool), slog.String("chain_id", chainID), slog.Any("error", err))
			continue
		}
		call, decodeErr := analysis.NewToolCall(tool, args, result, nil)
		if decodeErr != nil {
			log.Debug("工具结果无法解析为强类型", slog.String("tool", tool), slog.Any("error", decodeErr))
		}
		calls = append(calls, call)
	}
	return calls
}

func flatten(groups [][]analysis.ToolCall) []analysis.ToolCall {
	var out []analysis.ToolCall
	for _, group := range groups {
		out = append(out, group...)
	}
	return out
}
