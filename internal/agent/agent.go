package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ChainScope-Agent/internal/analysis"
	"ChainScope-Agent/internal/chain"
	"ChainScope-Agent/internal/llm"
	"ChainScope-Agent/internal/mcp"
	"ChainScope-Agent/internal/storage/mysql"
)

// ToolInvoker 提供对外公开的工具目录与按名称调用的入口，通常由 *mcp.Registry 实现。
type ToolInvoker interface {
	PublicTools() []mcp.Tool
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// FanOutMode 决定多链查询是并发还是串行执行。
type FanOutMode string

const (
	FanOutParallel   FanOutMode = "parallel"
	FanOutSequential FanOutMode = "sequential"
)

const (
	defaultMaxIterations   = 15
	defaultHistoryWindow   = 10
	defaultForceAfter      = 3
	defaultToolTimeout     = 30 * time.Second
	defaultResultBudget    = 8000
	defaultChainID         = "1"
	defaultFanOutDelay     = 300 * time.Millisecond
	defaultTemperature     = 0.1
	defaultMaxOutputTokens = 8000
)

// Agent 持有对话循环共享的协作者与预算配置，本身不保存任何会话状态。
type Agent struct {
	llmClient   llm.Client
	tools       ToolInvoker
	classifier  *analysis.Classifier
	catalog     *chain.Catalog
	transcripts mysql.TranscriptRepository

	maxIterations   int
	historyWindow   int
	forceAfter      int
	toolTimeout     time.Duration
	llmTimeout      time.Duration
	resultBudget    int
	defaultChain    string
	fanOutMode      FanOutMode
	fanOutDelay     time.Duration
	temperature     float32
	maxOutputTokens int32
	now             func() time.Time
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithMaxIterations 设置单轮对话最多调用大模型的次数。
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithHistoryWindow 设置每次发送给大模型的历史消息条数。
func WithHistoryWindow(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.historyWindow = n
		}
	}
}

// WithForceAfter 设置累计多少次工具调用后要求模型直接给出答案。
func WithForceAfter(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.forceAfter = n
		}
	}
}

// WithToolTimeout 设置单次工具调用的超时时间。
func WithToolTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout > 0 {
			a.toolTimeout = timeout
		}
	}
}

// WithLLMTimeout 设置调用大模型的超时时间，0 表示只受调用方 context 约束。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// WithResultBudget 限制写回对话的单个工具结果的字符数。
func WithResultBudget(chars int) Option {
	return func(a *Agent) {
		if chars > 0 {
			a.resultBudget = chars
		}
	}
}

// WithDefaultChain 设置调用方未指定链时注入的 chain_id。
func WithDefaultChain(id string) Option {
	return func(a *Agent) {
		if id != "" {
			a.defaultChain = id
		}
	}
}

// WithFanOut 设置多链查询的执行方式，串行模式下每条链之间暂停 delay。
func WithFanOut(mode FanOutMode, delay time.Duration) Option {
	return func(a *Agent) {
		if mode == FanOutParallel || mode == FanOutSequential {
			a.fanOutMode = mode
		}
		if delay >= 0 {
			a.fanOutDelay = delay
		}
	}
}

// WithGeneration 设置采样温度与输出长度上限。
func WithGeneration(temperature float32, maxOutputTokens int32) Option {
	return func(a *Agent) {
		if temperature > 0 {
			a.temperature = temperature
		}
		if maxOutputTokens > 0 {
			a.maxOutputTokens = maxOutputTokens
		}
	}
}

// WithTranscripts 配置对话审计仓库。
func WithTranscripts(repo mysql.TranscriptRepository) Option {
	return func(a *Agent) {
		a.transcripts = repo
	}
}

// WithClock 注入时钟，用于结果时间戳。
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// New 创建 Agent。classifier 为空时使用内置链目录构建。
func New(llmClient llm.Client, tools ToolInvoker, classifier *analysis.Classifier, opts ...Option) *Agent {
	if classifier == nil {
		classifier = analysis.NewClassifier(nil)
	}
	ag := &Agent{
		llmClient:       llmClient,
		tools:           tools,
		classifier:      classifier,
		catalog:         classifier.Catalog(),
		maxIterations:   defaultMaxIterations,
		historyWindow:   defaultHistoryWindow,
		forceAfter:      defaultForceAfter,
		toolTimeout:     defaultToolTimeout,
		resultBudget:    defaultResultBudget,
		defaultChain:    defaultChainID,
		fanOutMode:      FanOutParallel,
		fanOutDelay:     defaultFanOutDelay,
		temperature:     defaultTemperature,
		maxOutputTokens: defaultMaxOutputTokens,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// NewSession 创建一个拥有独立历史的会话。
func (a *Agent) NewSession() *Session {
	return a.NewSessionWithID(uuid.NewString())
}

// NewSessionWithID 使用指定 ID 创建会话，ID 为空时自动生成。
func (a *Agent) NewSessionWithID(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{id: id, agent: a}
}

// PublicTools 返回模型可见的工具目录。
func (a *Agent) PublicTools() []mcp.Tool {
	if a.tools == nil {
		return nil
	}
	return a.tools.PublicTools()
}

// Catalog 返回链目录。
func (a *Agent) Catalog() *chain.Catalog { return a.catalog }
