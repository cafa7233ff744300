package job

import (
	"context"

	"ChainScope-Agent/internal/agent"
	xerrors "ChainScope-Agent/internal/errors"
)

// Store 定义任务状态的持久化能力。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 把任务切换为 running 并累加尝试次数。
	// 已成功返回 ErrJobCompleted，运行中返回 ErrJobConflict，已终止返回 ErrJobExhausted。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result agent.AnalysisResult) error
	// MarkFailed 记录失败原因；terminal 为 false 时任务回到 pending 等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// claim 在内存副本上执行 Claim 的状态迁移，供各存储实现共用。
func claim(j *Job, now int64) error {
	switch j.Status {
	case StatusSucceeded:
		return ErrJobCompleted
	case StatusRunning:
		return ErrJobConflict
	case StatusFailed:
		return ErrJobExhausted
	}
	if j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts {
		return ErrJobExhausted
	}
	j.Status = StatusRunning
	j.Attempts++
	j.UpdatedAt = now
	return nil
}

func markSucceeded(j *Job, result agent.AnalysisResult, now int64) {
	j.Status = StatusSucceeded
	j.Result = &result
	j.LastError = ""
	j.ErrorCode = ""
	j.UpdatedAt = now
}

func markFailed(j *Job, code xerrors.Code, lastError string, terminal bool, now int64) {
	j.Status = StatusPending
	if terminal {
		j.Status = StatusFailed
	}
	j.LastError = lastError
	j.ErrorCode = string(code)
	j.UpdatedAt = now
}
