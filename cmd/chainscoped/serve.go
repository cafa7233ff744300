package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ChainScope-Agent/internal/api"
	"ChainScope-Agent/internal/auth"
	"ChainScope-Agent/internal/config"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/job"
	"ChainScope-Agent/internal/observability/alerting"
	"ChainScope-Agent/internal/session"
	"ChainScope-Agent/pkg/logger"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *rootFlags) error {
	rt, err := bootstrap(ctx, flags)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	sessions := session.NewManager(rt.agent, session.WithTTL(cfg.Server.SessionTTL))

	jobs, processor, err := buildJobs(ctx, cfg, sessions)
	if err != nil {
		return err
	}
	defer jobs.Close()

	server := api.NewServer(cfg.Server.Address, rt.agent, sessions,
		api.WithJobs(jobs),
		api.WithAuthenticator(auth.NewAPIKeys(cfg.Server.APIKeys...)),
		api.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		api.WithReadTimeout(cfg.Server.ReadTimeout),
	)

	logger.Named("serve").Info("chainscoped 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("environment", cfg.Runtime.Environment),
		slog.String("llm", cfg.LLM.Provider),
		slog.String("queue", cfg.Jobs.Queue),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return processor.Start(gctx) })
	g.Go(func() error {
		sessions.Run(gctx, sweepInterval(cfg.Server.SessionTTL))
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// buildJobs 按配置选择队列；使用 Redis 队列时任务状态也保存在同一个 Redis 中。
func buildJobs(ctx context.Context, cfg *config.Config, sessions *session.Manager) (*job.Service, *job.Processor, error) {
	var (
		queue job.Queue
		store job.Store
	)
	switch cfg.Jobs.Queue {
	case "memory":
		queue = job.NewMemoryQueue(1024)
		store = job.NewMemoryStore()
	case "redis":
		q, err := job.NewRedisQueue(ctx, job.RedisQueueConfig{
			Address:   cfg.Jobs.Redis.Address,
			Password:  cfg.Jobs.Redis.Password,
			DB:        cfg.Jobs.Redis.DB,
			Queue:     cfg.Jobs.Redis.Queue,
			BlockWait: cfg.Jobs.Redis.BlockWait,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = q
		store = job.NewRedisStore(q.Client(), "", 0)
	case "rabbitmq":
		q, err := job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:      cfg.Jobs.RabbitMQ.URL,
			Queue:    cfg.Jobs.RabbitMQ.Queue,
			Prefetch: cfg.Jobs.RabbitMQ.Prefetch,
			Durable:  cfg.Jobs.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, nil, err
		}
		queue = q
		store = job.NewMemoryStore()
	default:
		return nil, nil, xerrors.New(xerrors.CodeConfigInvalid, "未知的队列驱动: "+cfg.Jobs.Queue)
	}

	notifiers := []alerting.Notifier{alerting.AuditNotifier{}}
	if webhook := alerting.NewWebhookNotifier(cfg.Jobs.AlertWebhook); webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	svc := job.NewService(store, queue, cfg.Jobs.MaxRetries)
	processor := job.NewProcessor(job.SessionExecutor(sessions), store, queue, queue,
		job.WithWorkers(cfg.Jobs.Workers),
		job.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)
	return svc, processor, nil
}
