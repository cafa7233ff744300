package job

import (
	"ChainScope-Agent/internal/agent"
	xerrors "ChainScope-Agent/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsValidStatus 判断状态是否合法。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Job 是一次排队执行的对话轮次。
// 可重试的失败会把任务放回 pending，只有最终失败才会进入 failed。
type Job struct {
	ID          string                `json:"id"`
	SessionID   string                `json:"sessionId"`
	Message     string                `json:"message"`
	ChainID     string                `json:"chainId,omitempty"`
	Status      Status                `json:"status"`
	Attempts    int                   `json:"attempts"`
	MaxAttempts int                   `json:"maxAttempts"`
	LastError   string                `json:"lastError,omitempty"`
	ErrorCode   string                `json:"errorCode,omitempty"`
	Result      *agent.AnalysisResult `json:"result,omitempty"`
	CreatedAt   int64                 `json:"createdAt"`
	UpdatedAt   int64                 `json:"updatedAt"`
}

// Done 判断任务是否已经到达终态。
func (j *Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

func cloneJob(j *Job) *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Result != nil {
		result := *j.Result
		clone.Result = &result
	}
	return &clone
}

const (
	CodeJobNotFound    xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict    xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted   xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted   xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobPublish     xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing  xerrors.Code = "JOB_PROCESSING_FAILED"
	CodeJobInterrupted xerrors.Code = "JOB_INTERRUPTED"
)

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示任务在当前状态下无法执行请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict")
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed")
	// ErrJobExhausted 表示任务已经失败且不会再重试。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted")
	// ErrJobInterrupted 表示处理器退出时任务被放回 pending，队列应重新投递。
	ErrJobInterrupted = xerrors.New(CodeJobInterrupted, "job interrupted by shutdown")
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{Message: "job not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{Message: "job conflict", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{Message: "job already completed", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{Message: "job retries exhausted", Severity: xerrors.SeverityCritical})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{Message: "failed to publish job", Severity: xerrors.SeverityCritical, Retryable: true})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{Message: "job processing failed", Severity: xerrors.SeverityWarning})
	xerrors.Register(CodeJobInterrupted, xerrors.Attributes{Message: "job interrupted by shutdown", Severity: xerrors.SeverityInfo, Retryable: true})
}
