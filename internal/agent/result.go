package agent

import (
	"time"

	"ChainScope-Agent/internal/analysis"
	xerrors "ChainScope-Agent/internal/errors"
)

// AnalysisData 是一轮成功对话的产出。
type AnalysisData struct {
	Response   string              `json:"response"`
	ToolCalls  []analysis.ToolCall `json:"toolCalls"`
	Iterations int                 `json:"iterations"`
	Category   analysis.Category   `json:"category,omitempty"`
}

// AnalysisResult 是 Chat 的返回值，构建后不再修改。
type AnalysisResult struct {
	Success   bool          `json:"success"`
	Data      *AnalysisData `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`

	err error
}

// Err 返回失败原因，成功时为 nil。
func (r AnalysisResult) Err() error { return r.err }

// Code 返回失败原因的错误码。
func (r AnalysisResult) Code() xerrors.Code {
	if r.err == nil {
		return ""
	}
	return xerrors.CodeOf(r.err)
}

func (a *Agent) succeed(response string, calls []analysis.ToolCall, iterations int, category analysis.Category) AnalysisResult {
	if calls == nil {
		calls = []analysis.ToolCall{}
	}
	return AnalysisResult{
		Success: true,
		Data: &AnalysisData{
			Response:   response,
			ToolCalls:  calls,
			Iterations: iterations,
			Category:   category,
		},
		Timestamp: a.now(),
	}
}

func (a *Agent) fail(err error) AnalysisResult {
	return AnalysisResult{
		Success:   false,
		Error:     errorText(err),
		Timestamp: a.now(),
		err:       err,
	}
}

// errorText 去掉错误码前缀，只保留面向用户的描述与原因。
func errorText(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := xerrors.From(err); ok {
		if cause := e.Unwrap(); cause != nil {
			return e.Message() + ": " + cause.Error()
		}
		return e.Message()
	}
	return err.Error()
}

// FailedResult 构造一个失败结果，供不经过会话执行的调用方使用。
func FailedResult(err error) AnalysisResult {
	return AnalysisResult{Success: false, Error: errorText(err), Timestamp: time.Now(), err: err}
}
