package job

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/observability/metrics"
	"ChainScope-Agent/pkg/logger"
)

// SubmitRequest 描述一次异步对话请求。
type SubmitRequest struct {
	// ID 可选，用于幂等提交；同 ID 的任务已存在时直接返回。
	ID        string
	SessionID string
	Message   string
	ChainID   string
}

// Service 负责任务的提交与查询。
type Service struct {
	store       Store
	producer    Producer
	maxAttempts int
}

// NewService 创建任务服务，maxRetries 为首次执行之外允许的重试次数。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Service{store: store, producer: producer, maxAttempts: maxRetries + 1}
}

// Submit 创建一个新的任务并推送到队列。
// 未指定会话时任务使用独立的会话，会话 ID 由任务 ID 派生。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Message is required")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		existing, err := s.store.Get(ctx, jobID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = "job-" + jobID
	}

	j := &Job{
		ID:          jobID,
		SessionID:   sessionID,
		Message:     message,
		ChainID:     strings.TrimSpace(req.ChainID),
		Status:      StatusPending,
		MaxAttempts: s.maxAttempts,
	}
	if err := s.store.Create(ctx, j); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			if existing, getErr := s.store.Get(ctx, jobID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(context.WithoutCancel(ctx), jobID, CodeJobPublish, wrapped.Error(), true)
		metrics.ObserveJobTransition(string(StatusFailed))
		return nil, wrapped
	}
	metrics.ObserveJobTransition(string(StatusPending))
	logger.Audit().Info("job_submitted",
		slog.String("job_id", jobID),
		slog.String("session_id", sessionID),
		slog.String("chain_id", j.ChainID),
		slog.Int("max_attempts", j.MaxAttempts),
	)
	return j, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回任务统计信息。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx)
}

// WaitUntilCompleted 轮询任务直到进入终态或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if j.Done() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return j, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待任务完成超时")
		case <-ticker.C:
		}
	}
}

// Close 释放存储与队列。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
