package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"ChainScope-Agent/internal/analysis"
	"ChainScope-Agent/internal/blockscout"
	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/internal/llm"
	"ChainScope-Agent/internal/mcp"
	"ChainScope-Agent/internal/observability/metrics"
	"ChainScope-Agent/internal/protocol"
	"ChainScope-Agent/internal/storage/mysql"
	"ChainScope-Agent/pkg/logger"
)

const (
	noToolDataAnswer = protocol.FinalAnswerMarker + " No tool data collected. Please try again."
	minAnswerLength  = 10
	previewLength    = 200
)

var contractKeywords = []string{
	"analyze", "analysis", "contract", "safety", "risk", "assess",
	"evaluate", "check", "investigate", "examine", "review",
}

// Session 保存一个用户的对话历史。同一会话的 Chat 调用串行执行。
type Session struct {
	id    string
	agent *Agent

	mu      sync.Mutex
	history []llm.Message
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// History 返回完整历史的副本。
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.history...)
}

// ClearHistory 清空历史，可重复调用。
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
	logger.Named("agent").Info("会话历史已清空", slog.String("session", s.id))
}

// Chat 执行一轮对话：调用大模型、按需执行工具，直到得到最终答案或达到迭代上限。
// chainID 为空时使用默认链。
func (s *Session) Chat(ctx context.Context, message, chainID string) AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	message = strings.TrimSpace(message)
	chainID = strings.TrimSpace(chainID)

	started := time.Now()
	result := s.chat(ctx, message, chainID)
	s.agent.audit(ctx, s, message, chainID, result, time.Since(started))
	return result
}

func (s *Session) chat(ctx context.Context, message, chainID string) AnalysisResult {
	a := s.agent
	switch {
	case a.llmClient == nil:
		return a.fail(xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端"))
	case a.tools == nil:
		return a.fail(xerrors.New(xerrors.CodeInitializationFailure, "未配置工具注册表"))
	case message == "":
		return a.fail(xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空"))
	}

	log := logger.Named("agent").With(slog.String("session", s.id))
	s.history = append(s.history, llm.Message{Role: llm.RoleUser, Content: message})

	if address := analysis.ExtractAddress(message); chainID == "" && address != "" && IsMultiChainRequest(message) {
		log.Info("检测到多链查询，跳过大模型直接扇出", slog.String("address", address))
		calls := a.fanOut(ctx, address)
		category, response := a.classifier.Render(message, calls)
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: response})
		metrics.ObserveIterations(1)
		return a.succeed(response, calls, 1, category)
	}

	tools := a.tools.PublicTools()
	allowed := make(map[string]struct{}, len(tools))
	for _, tool := range tools {
		allowed[tool.Name] = struct{}{}
	}
	basePrompt := a.systemPrompt(chainID, tools)
	contract := isContractAnalysis(message)

	var calls []analysis.ToolCall
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		system := basePrompt
		if len(calls) >= a.forceAfter || iteration >= a.maxIterations-2 {
			system += forceAnswerInstruction
		}

		completion, err := a.generate(ctx, system, s.window())
		if err != nil || protocol.IsEmpty(completion) {
			if err != nil {
				log.Warn("大模型调用失败，使用已收集的数据作答", slog.Int("iteration", iteration), slog.Any("error", err))
			}
			completion = a.fallbackCompletion(message, calls)
		}

		parsed := protocol.Parse(completion)
		if parsed.IsToolCall() {
			call, followUp := a.invoke(ctx, parsed.ToolCall, chainID, allowed)
			if call != nil {
				calls = append(calls, *call)
			}
			s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: followUp})
			continue
		}

		response, category := a.finalize(message, parsed.FinalAnswer, calls, contract)
		s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: response})
		metrics.ObserveIterations(iteration)
		return a.succeed(response, calls, iteration, category)
	}

	log.Warn("达到最大迭代次数，输出确定性摘要", slog.Int("iterations", a.maxIterations), slog.Int("tool_calls", len(calls)))
	var (
		category analysis.Category
		response string
	)
	if contract && hasTool(calls, blockscout.ToolAddressInfo) {
		category = analysis.CategoryContract
		response = a.classifier.RenderCategory(category, message, calls)
	} else {
		category, response = a.classifier.Render(message, calls)
	}
	s.history = append(s.history, llm.Message{Role: llm.RoleAssistant, Content: response})
	metrics.ObserveIterations(a.maxIterations)
	return a.succeed(response, calls, a.maxIterations, category)
}

// window 返回最近 historyWindow 条消息。
func (s *Session) window() []llm.Message {
	start := len(s.history) - s.agent.historyWindow
	if start < 0 {
		start = 0
	}
	return append([]llm.Message(nil), s.history[start:]...)
}

func (a *Agent) generate(ctx context.Context, system string, messages []llm.Message) (string, error) {
	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := a.llmClient.Generate(llmCtx, llm.Request{
		System:          system,
		Messages:        messages,
		Temperature:     a.temperature,
		MaxOutputTokens: a.maxOutputTokens,
	})
	switch {
	case err != nil && stdErrors.Is(err, context.DeadlineExceeded):
		metrics.ObserveLLMCall(metrics.OutcomeTimeout, time.Since(started))
		return "", xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
	case err != nil:
		metrics.ObserveLLMCall(metrics.OutcomeError, time.Since(started))
		return "", xerrors.Wrap(xerrors.CodeLLMFailure, err, "大模型推理失败")
	case resp == nil:
		metrics.ObserveLLMCall(metrics.OutcomeError, time.Since(started))
		return "", xerrors.New(xerrors.CodeLLMFailure, "大模型返回空响应")
	}
	metrics.ObserveLLMCall(metrics.OutcomeSuccess, time.Since(started))
	return resp.Text, nil
}

// fallbackCompletion 在模型不可用或输出为空时，用已收集的数据合成最终答案。
func (a *Agent) fallbackCompletion(message string, calls []analysis.ToolCall) string {
	if len(calls) == 0 {
		return noToolDataAnswer
	}
	_, summary := a.classifier.Render(message, calls)
	return protocol.FinalAnswerMarker + " " + summary
}

// invoke 校验并执行模型请求的工具，返回调用记录与写回历史的消息。
// 被拒绝的调用不会产生记录。
func (a *Agent) invoke(ctx context.Context, req *protocol.ToolCall, chainID string, allowed map[string]struct{}) (*analysis.ToolCall, string) {
	log := logger.Named("agent").With(slog.String("tool", req.Name))

	if _, ok := allowed[req.Name]; !ok || mcp.IsInternal(req.Name) {
		err := refuseTool(req.Name, allowed)
		metrics.ObserveToolCall(req.Name, metrics.OutcomeRefused, 0)
		log.Warn("拒绝调用未公开的工具", slog.Any("error", err))
		return nil, toolFailureMessage(err)
	}

	args := make(map[string]any, len(req.Args)+1)
	for k, v := range req.Args {
		args[k] = v
	}
	if !analysis.HasArg(args, "chain_id") {
		if chainID != "" {
			args["chain_id"] = chainID
		} else {
			args["chain_id"] = a.defaultChain
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()
	result, err := a.tools.Call(callCtx, req.Name, args)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeUnknown {
			if stdErrors.Is(err, context.DeadlineExceeded) {
				err = xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("工具 %s 调用超时", req.Name))
			} else {
				err = xerrors.Wrap(xerrors.CodeToolFailure, err, fmt.Sprintf("工具 %s 调用失败", req.Name))
			}
		}
		log.Warn("工具调用失败", slog.Any("error", err))
		call, _ := analysis.NewToolCall(req.Name, args, nil, err)
		return &call, toolFailureMessage(err)
	}

	call, decodeErr := analysis.NewToolCall(req.Name, args, result, nil)
	if decodeErr != nil {
		log.Debug("工具结果无法解析为强类型", slog.Any("error", decodeErr))
	}
	if call.Decoded().HasNextPage() {
		log.Info("工具结果包含下一页")
	}
	logger.Audit().Info("tool_call",
		slog.String("tool", req.Name),
		slog.String("chain_id", analysis.ArgString(args, "chain_id")),
	)
	return &call, a.toolResultMessage(req.Name, result)
}

func refuseTool(name string, allowed map[string]struct{}) error {
	if mcp.IsInternal(name) {
		return xerrors.New(xerrors.CodeToolNotAllowed, fmt.Sprintf("Tool %q is internal and cannot be called", name))
	}
	if len(allowed) == 0 {
		return xerrors.New(xerrors.CodeToolNotAllowed, fmt.Sprintf("Tool %q is not available: no tools are loaded", name))
	}
	return xerrors.New(xerrors.CodeToolNotAllowed, fmt.Sprintf("Tool %q is not available", name))
}

func toolFailureMessage(err error) string {
	return "Tool execution failed: " + errorText(err)
}

// toolResultMessage 把工具结果格式化为下一轮的上下文，超出预算的部分被截断。
func (a *Agent) toolResultMessage(name string, result any) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprint(result))
	}
	body := truncate(string(data), a.resultBudget)
	if omitted := len(data) - len(body); omitted > 0 {
		body += fmt.Sprintf("\n... [truncated %d bytes]", omitted)
	}

	return fmt.Sprintf(`Tool %q returned data.

IMPORTANT: You MUST now either:
1. Call another tool if you need more information, OR
2. Provide your FINAL_ANSWER starting with "%s "

Data received:
%s

If this is sufficient to answer the user's question, provide FINAL_ANSWER now.`, name, protocol.FinalAnswerMarker, body)
}

// finalize 在必要时用确定性报告替换模型的答案。
func (a *Agent) finalize(message, answer string, calls []analysis.ToolCall, contract bool) (string, analysis.Category) {
	if contract && hasTool(calls, blockscout.ToolAddressInfo) && len(calls) >= 2 {
		return a.classifier.RenderCategory(analysis.CategoryContract, message, calls), analysis.CategoryContract
	}
	if utf8.RuneCountInString(strings.TrimSpace(answer)) < minAnswerLength && len(calls) > 0 {
		return summarizeCalls(calls), ""
	}
	return answer, ""
}

// summarizeCalls 列出本轮的工具调用及结果预览。
func summarizeCalls(calls []analysis.ToolCall) string {
	entries := make([]string, 0, len(calls))
	for i, call := range calls {
		var preview string
		if call.Failed() {
			preview = "Error: " + call.Error
		} else {
			encoded, _ := json.Marshal(call.Result)
			preview = "Result: " + truncate(string(encoded), previewLength) + "..."
		}
		entries = append(entries, fmt.Sprintf("%d. %s\n   %s", i+1, call.Tool, preview))
	}
	return fmt.Sprintf("Analysis complete. I made %d tool call(s):\n\n", len(calls)) + strings.Join(entries, "\n\n")
}

func isContractAnalysis(message string) bool {
	if analysis.ExtractAddress(message) == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, keyword := range contractKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func hasTool(calls []analysis.ToolCall, tool string) bool {
	for _, call := range calls {
		if call.Tool == tool && !call.Failed() {
			return true
		}
	}
	return false
}

// truncate 按字节截断且不切断 UTF-8 字符。
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// audit 记录审计日志并写入对话仓库，写入失败只告警。
func (a *Agent) audit(ctx context.Context, s *Session, message, chainID string, result AnalysisResult, elapsed time.Duration) {
	attrs := []any{
		slog.String("session", s.id),
		slog.String("chain_id", chainID),
		slog.Bool("success", result.Success),
		slog.Duration("elapsed", elapsed),
	}
	record := &mysql.TranscriptRecord{
		SessionID:     s.id,
		Message:       message,
		ChainID:       chainID,
		Success:       result.Success,
		Error:         result.Error,
		HistoryLength: len(s.history),
		CreatedAt:     result.Timestamp.Unix(),
	}
	if data := result.Data; data != nil {
		attrs = append(attrs,
			slog.Int("iterations", data.Iterations),
			slog.Int("tool_calls", len(data.ToolCalls)),
			slog.String("category", string(data.Category)),
		)
		record.Response = data.Response
		record.Iterations = data.Iterations
		record.Category = string(data.Category)
		if encoded, err := json.Marshal(data.ToolCalls); err == nil {
			record.ToolCalls = string(encoded)
		}
	}
	logger.Audit().Info("chat_turn", attrs...)

	if a.transcripts == nil {
		return
	}
	if err := a.transcripts.Save(context.WithoutCancel(ctx), record); err != nil {
		logger.Named("agent").Warn("写入对话审计失败", slog.String("session", s.id), slog.Any("error", err))
	}
}
