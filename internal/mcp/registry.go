package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ChainScope-Agent/internal/blockscout"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/observability/metrics"
	"ChainScope-Agent/pkg/logger"
)

// Registry 合并多个工具来源，按工具名路由调用。
// 多个来源提供同名工具时，先注册的来源优先。
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	tools   []Tool
	owners  map[string]Source
}

// NewRegistry 创建注册表，需要调用 Refresh 才会加载工具目录。
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{owners: make(map[string]Source)}
	for _, s := range sources {
		if s != nil {
			r.sources = append(r.sources, s)
		}
	}
	return r
}

// Refresh 重新拉取所有来源的工具目录。
// 单个来源失败只记录告警；全部失败时返回错误。
func (r *Registry) Refresh(ctx context.Context) error {
	log := logger.Named("mcp")
	var (
		tools []Tool
		errs  []error
	)
	owners := make(map[string]Source)
	for _, source := range r.sources {
		listed, err := source.ListTools(ctx)
		if err != nil {
			log.Warn("加载工具目录失败", slog.String("source", fmt.Sprintf("%T", source)), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		for _, tool := range listed {
			if _, exists := owners[tool.Name]; exists {
				log.Debug("忽略重复的工具", slog.String("tool", tool.Name))
				continue
			}
			owners[tool.Name] = source
			tools = append(tools, tool)
		}
	}
	if len(tools) == 0 && len(errs) > 0 {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, errors.Join(errs...), "没有可用的工具来源")
	}

	r.mu.Lock()
	r.tools, r.owners = tools, owners
	r.mu.Unlock()

	log.Info("工具目录已加载", slog.Int("tools", len(tools)), slog.Int("public", len(r.PublicTools())))
	return nil
}

// Tools 返回包含内部工具在内的完整目录。
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// PublicTools 返回隐藏内部工具后的目录，用于提示词与对外接口。
func (r *Registry) PublicTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, t := range r.tools {
		if t.Public() {
			out = append(out, t)
		}
	}
	return out
}

// Lookup 按名称查找工具。
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Call 把调用路由到工具所属的来源。
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	source, ok := r.owners[name]
	r.mu.RUnlock()
	if !ok {
		metrics.ObserveToolCall(name, metrics.OutcomeRefused, 0)
		return nil, xerrors.New(xerrors.CodeToolNotFound, fmt.Sprintf("Tool %q not found", name))
	}

	started := time.Now()
	result, err := source.CallTool(ctx, name, args)
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = metrics.OutcomeTimeout
		err = xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("工具 %s 调用超时", name))
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveToolCall(name, outcome, time.Since(started))
	return result, err
}

// Unlock 为每条链调用内部解锁工具，两次调用之间暂停 delay。
// 目录中没有解锁工具时直接返回；失败只记录告警。返回成功解锁的链数量。
func (r *Registry) Unlock(ctx context.Context, chainIDs []string, delay time.Duration) int {
	if _, ok := r.Lookup(blockscout.ToolUnlockAnalysis); !ok {
		return 0
	}
	log := logger.Named("mcp")
	unlocked := 0
	for i, id := range chainIDs {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return unlocked
			case <-time.After(delay):
			}
		}
		if _, err := r.Call(ctx, blockscout.ToolUnlockAnalysis, map[string]any{"chain_id": id}); err != nil {
			log.Warn("链解锁失败", slog.String("chain_id", id), slog.Any("error", err))
			continue
		}
		unlocked++
	}
	log.Info("链解锁完成", slog.Int("unlocked", unlocked), slog.Int("chains", len(chainIDs)))
	return unlocked
}

// Close 关闭所有来源。
func (r *Registry) Close() error {
	var errs []error
	for _, s := range r.sources {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
