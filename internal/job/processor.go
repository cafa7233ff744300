package job

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"ChainScope-Agent/internal/agent"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/observability/alerting"
	"ChainScope-Agent/internal/observability/metrics"
	"ChainScope-Agent/internal/session"
	"ChainScope-Agent/pkg/logger"
)

// Executor 执行一次任务对应的对话轮次。
type Executor interface {
	Execute(ctx context.Context, j *Job) agent.AnalysisResult
}

// ExecutorFunc 让普通函数实现 Executor。
type ExecutorFunc func(ctx context.Context, j *Job) agent.AnalysisResult

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, j *Job) agent.AnalysisResult { return f(ctx, j) }

// SessionExecutor 在任务指定的会话中执行对话，会话不存在时自动创建。
func SessionExecutor(sessions *session.Manager) Executor {
	return ExecutorFunc(func(ctx context.Context, j *Job) agent.AnalysisResult {
		s, _ := sessions.Acquire(j.SessionID)
		return s.Chat(ctx, j.Message, j.ChainID)
	})
}

// Processor 负责从队列消费任务并交给 Executor 执行。
type Processor struct {
	executor Executor
	store    Store
	consumer Consumer
	producer Producer
	workers  int
	alerter  alerting.Dispatcher
	now      func() time.Time
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithWorkers 设置消费协程数量。
func WithWorkers(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

// WithAlertDispatcher 配置最终失败时的告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor: executor,
		store:    store,
		consumer: consumer,
		producer: producer,
		workers:  1,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	logger.Named("job").Info("任务处理器已启动", slog.Int("workers", p.workers))
	return p.consumer.Consume(ctx, p.workers, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	log := logger.Named("job")
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	j, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) ||
			stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			log.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		log.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}
	metrics.ObserveJobTransition(string(StatusRunning))

	result := p.executor.Execute(ctx, j)
	if ctx.Err() != nil {
		// 进程退出时放回 pending，保留尝试次数，由队列负责重新投递。
		if err := p.store.MarkFailed(context.WithoutCancel(ctx), j.ID, CodeJobInterrupted, "processor stopped", false); err != nil {
			log.Error("退出时回退任务状态失败", slog.Any("error", err), slog.String("job_id", j.ID))
			return err
		}
		log.Info("处理器退出，任务放回 pending", slog.String("job_id", j.ID), slog.Int("attempts", j.Attempts))
		return ErrJobInterrupted
	}
	if !result.Success {
		return p.handleFailure(ctx, j, result)
	}

	if err := p.store.MarkSucceeded(ctx, j.ID, result); err != nil {
		log.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", j.ID))
		return err
	}
	metrics.ObserveJobTransition(string(StatusSucceeded))
	logger.Audit().Info("job_succeeded",
		slog.String("job_id", j.ID),
		slog.String("session_id", j.SessionID),
		slog.Int("attempts", j.Attempts),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, j *Job, result agent.AnalysisResult) error {
	execErr := result.Err()
	if execErr == nil {
		execErr = xerrors.New(CodeJobProcessing, result.Error)
	}
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := !retryable || j.Attempts >= j.MaxAttempts

	if err := p.store.MarkFailed(ctx, j.ID, code, result.Error, terminal); err != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", err), slog.String("job_id", j.ID))
		return err
	}
	logger.Audit().Warn("job_failed",
		slog.String("job_id", j.ID),
		slog.String("session_id", j.SessionID),
		slog.Bool("terminal", terminal),
		slog.String("error", result.Error),
		slog.String("error_code", string(code)),
		slog.Int("attempts", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
	)

	if terminal {
		metrics.ObserveJobTransition(string(StatusFailed))
		stage := "terminal"
		if !retryable {
			stage = "non_retryable"
		}
		p.emitAlert(ctx, j, code, result.Error, stage)
		return nil
	}

	metrics.ObserveJobTransition("retrying")
	if err := p.producer.Publish(ctx, j.ID); err != nil {
		wrapped := xerrors.Wrap(CodeJobPublish, err, "任务重投失败")
		_ = p.store.MarkFailed(ctx, j.ID, CodeJobPublish, wrapped.Error(), true)
		p.emitAlert(ctx, j, CodeJobPublish, wrapped.Error(), "republish")
		return nil
	}
	logger.Named("job").Debug("任务已重新排队", slog.String("job_id", j.ID), slog.Int("attempts", j.Attempts))
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, j *Job, code xerrors.Code, message, stage string) {
	if p.alerter == nil {
		return
	}
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   xerrors.AttributesOf(code).Severity,
		JobID:      j.ID,
		SessionID:  j.SessionID,
		Stage:      stage,
		Attempts:   j.Attempts,
		MaxRetries: j.MaxAttempts - 1,
		OccurredAt: p.now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败", slog.Any("error", err), slog.String("job_id", j.ID), slog.String("stage", stage))
	}
}
