package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"ChainScope-Agent/internal/agent"
	"ChainScope-Agent/internal/analysis"
	"ChainScope-Agent/internal/chain"
	"ChainScope-Agent/internal/chain/rpc"
	"ChainScope-Agent/internal/config"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/llm"
	"ChainScope-Agent/internal/llm/gemini"
	"ChainScope-Agent/internal/llm/openai"
	"ChainScope-Agent/internal/mcp"
	"ChainScope-Agent/internal/storage/mysql"
	"ChainScope-Agent/pkg/logger"
)

// app 汇总一次进程运行所需的组件。
type app struct {
	cfg      *config.Config
	catalog  *chain.Catalog
	registry *mcp.Registry
	agent    *agent.Agent
	closers  []func() error
}

// Close 逆序释放资源。
func (r *app) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.envFiles...)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化日志失败")
	}
	return cfg, nil
}

// bootstrapTools 只构建链目录与工具注册表，不需要大模型凭据。
func bootstrapTools(ctx context.Context, flags *rootFlags) (_ *app, err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	rt := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()
	log := logger.Named("bootstrap")

	rt.catalog = chain.Default()
	if cfg.Chains.File != "" {
		if rt.catalog, err = chain.Load(cfg.Chains.File); err != nil {
			return nil, err
		}
	}

	client, err := mcp.Dial(ctx, mcp.Config{
		Transport: cfg.MCP.Transport,
		Endpoint:  cfg.MCP.Endpoint,
		Command:   cfg.MCP.Command,
		Args:      cfg.MCP.Args,
	})
	if err != nil {
		return nil, err
	}
	sources := []mcp.Source{client}
	if chainRPC := rpc.NewSource(rt.catalog); chainRPC.Enabled() {
		sources = append(sources, chainRPC)
	}
	rt.registry = mcp.NewRegistry(sources...)
	rt.closers = append(rt.closers, rt.registry.Close)

	if err := rt.registry.Refresh(ctx); err != nil {
		return nil, err
	}
	log.Info("工具目录已加载",
		slog.Int("tools", len(rt.registry.Tools())),
		slog.Int("public", len(rt.registry.PublicTools())),
	)
	return rt, nil
}

// bootstrap 在工具注册表之上继续构建大模型客户端、对话记录存储与 Agent。
func bootstrap(ctx context.Context, flags *rootFlags) (_ *app, err error) {
	rt, err := bootstrapTools(ctx, flags)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()
	cfg := rt.cfg

	if cfg.MCP.UnlockOnStart {
		rt.registry.Unlock(ctx, rt.catalog.IDs(), cfg.MCP.UnlockDelay)
	}

	llmClient, err := createLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	transcripts, err := openTranscripts(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closer, ok := transcripts.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	fanOut := agent.FanOutParallel
	if cfg.Agent.FanOutMode == "sequential" {
		fanOut = agent.FanOutSequential
	}
	rt.agent = agent.New(llmClient, rt.registry, analysis.NewClassifier(rt.catalog),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithHistoryWindow(cfg.Agent.HistoryWindow),
		agent.WithForceAfter(cfg.Agent.ForceAfter),
		agent.WithToolTimeout(cfg.Agent.ToolTimeout),
		agent.WithLLMTimeout(cfg.Agent.LLMTimeout),
		agent.WithResultBudget(cfg.Agent.ResultBudget),
		agent.WithDefaultChain(cfg.Agent.DefaultChainID),
		agent.WithFanOut(fanOut, cfg.Agent.FanOutDelay),
		agent.WithGeneration(cfg.LLM.Temperature, cfg.LLM.MaxOutputTokens),
		agent.WithTranscripts(transcripts),
	)
	return rt, nil
}

func createLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.LLM.Provider {
	case "gemini":
		client, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
	case "openai":
		client, err = openai.NewClient(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		})
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未知的大模型 provider: "+cfg.LLM.Provider)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化大模型客户端失败")
	}
	return client, nil
}

func openTranscripts(ctx context.Context, cfg *config.Config) (mysql.TranscriptRepository, error) {
	store := cfg.Storage.Transcripts
	switch store.Driver {
	case "memory":
		if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
		}
		return mysql.NewMemoryTranscriptRepository(cfg.Runtime.DataDir)
	case "mysql":
		return mysql.NewSQLTranscriptRepository(ctx, mysql.Config{
			DSN:             store.DSN,
			MaxOpenConns:    store.MaxOpenConns,
			MaxIdleConns:    store.MaxIdleConns,
			ConnMaxLifetime: store.ConnMaxLifetime,
			ConnMaxIdleTime: store.ConnMaxIdleTime,
		})
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "未知的对话记录存储: "+store.Driver)
	}
}
