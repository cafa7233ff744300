package analysis

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"ChainScope-Agent/internal/chain"
	"ChainScope-Agent/pkg/logger"
)

// Category 是报告类别。
type Category string

const (
	CategoryTransactionHash Category = "transaction_hash"
	CategoryDeFiProtocols   Category = "defi_protocols"
	CategoryChainComparison Category = "chain_comparison"
	CategoryTokenHoldings   Category = "token_analysis"
	CategoryGas             Category = "gas_analysis"
	CategoryComprehensive   Category = "comprehensive_report"
	CategoryRisk            Category = "risk_assessment"
	CategoryContract        Category = "contract_analysis"
	CategoryPortfolio       Category = "portfolio_distribution"
	CategoryActivityRanking Category = "activity_ranking"
	CategorySpecificChain   Category = "specific_chain"
	CategoryGeneric         Category = "generic"
)

var (
	txHashPattern  = regexp.MustCompile(`0x[a-fA-F0-9]{64}`)
	addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// request 是一次分类与渲染的输入。
type request struct {
	message string
	lower   string
	address string
	chains  []chain.Chain
	calls   []ToolCall
}

func (r request) has(words ...string) bool {
	for _, w := range words {
		if strings.Contains(r.lower, w) {
			return true
		}
	}
	return false
}

// rule 是优先级表中的一项：第一条命中的规则决定报告类别。
type rule struct {
	category Category
	matches  func(r request) bool
	render   func(c *Classifier, r request) string
}

// rules 的顺序即优先级。
var rules = []rule{
	{
		category: CategoryTransactionHash,
		matches: func(r request) bool {
			return r.has("transaction", "tx", "hash") && txHashPattern.MatchString(r.message)
		},
		render: (*Classifier).transactionHashReport,
	},
	{
		category: CategoryDeFiProtocols,
		matches: func(r request) bool {
			return r.has("defi", "protocols", "interacted with", "dapps")
		},
		render: (*Classifier).defiReport,
	},
	{
		category: CategoryChainComparison,
		matches: func(r request) bool {
			return r.has("compare", " vs ", "versus", "between") && !r.has("across all chains")
		},
		render: (*Classifier).comparisonReport,
	},
	{
		category: CategoryTokenHoldings,
		matches: func(r request) bool {
			return r.has("token") && r.has("hold", "holdings", "transfer")
		},
		render: (*Classifier).tokenReport,
	},
	{
		category: CategoryGas,
		matches: func(r request) bool {
			return r.has("gas") && r.has("spend", "efficiency", "breakdown")
		},
		render: (*Classifier).gasReport,
	},
	{
		category: CategoryComprehensive,
		matches: func(r request) bool {
			return r.has("comprehensive report", "generate a") || (r.has("including") && r.has("balance"))
		},
		render: (*Classifier).comprehensiveReport,
	},
	{
		category: CategoryRisk,
		matches: func(r request) bool {
			return r.has("risk", "suspicious", "assess", "safety")
		},
		render: (*Classifier).riskReport,
	},
	{
		category: CategoryContract,
		matches: func(r request) bool {
			return r.has("contract") && r.has("analyze", "0x", "check")
		},
		render: (*Classifier).contractReport,
	},
	{
		category: CategoryPortfolio,
		matches: func(r request) bool {
			return r.has("portfolio", "distribution")
		},
		render: (*Classifier).tokenReport,
	},
	{
		category: CategoryActivityRanking,
		matches: func(r request) bool {
			return r.has("most active", "which chain") || (r.has("activity") && r.has("across all chains"))
		},
		render: (*Classifier).activityRankingReport,
	},
	{
		category: CategorySpecificChain,
		matches: func(r request) bool {
			return len(r.chains) == 1
		},
		render: (*Classifier).specificChainReport,
	},
}

var genericRule = rule{category: CategoryGeneric, render: (*Classifier).genericReport}

// Classifier 根据用户消息选择报告模板，并基于已收集的工具调用渲染确定性的文本。
// 相同的输入与时钟总是得到逐字节相同的输出。
type Classifier struct {
	catalog *chain.Catalog
	now     func() time.Time
}

// Option 自定义 Classifier。
type Option func(*Classifier)

// WithClock 注入时钟，"距今天数" 等字段都以它为准。
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClassifier 创建分类器，catalog 为空时使用内置链目录。
func NewClassifier(catalog *chain.Catalog, opts ...Option) *Classifier {
	if catalog == nil {
		catalog = chain.Default()
	}
	c := &Classifier{catalog: catalog, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Catalog 返回分类器使用的链目录。
func (c *Classifier) Catalog() *chain.Catalog { return c.catalog }

func (c *Classifier) newRequest(message string, calls []ToolCall) request {
	return request{
		message: message,
		lower:   strings.ToLower(message),
		address: ExtractAddress(message),
		chains:  c.catalog.Mentioned(message),
		calls:   calls,
	}
}

func (c *Classifier) match(r request) rule {
	for _, candidate := range rules {
		if candidate.matches(r) {
			return candidate
		}
	}
	return genericRule
}

// Classify 返回消息对应的报告类别。
func (c *Classifier) Classify(message string) Category {
	return c.match(c.newRequest(message, nil)).category
}

// Render 选择报告类别并渲染。
func (c *Classifier) Render(message string, calls []ToolCall) (Category, string) {
	r := c.newRequest(message, calls)
	selected := c.match(r)
	logger.Named("classifier").Debug("报告分类完成",
		slog.String("category", string(selected.category)),
		slog.Int("tool_calls", len(calls)),
	)
	return selected.category, selected.render(c, r)
}

// RenderCategory 按指定类别渲染，跳过优先级匹配。
func (c *Classifier) RenderCategory(category Category, message string, calls []ToolCall) string {
	r := c.newRequest(message, calls)
	for _, candidate := range rules {
		if candidate.category == category {
			return candidate.render(c, r)
		}
	}
	return genericRule.render(c, r)
}

// ExtractAddress 返回消息中第一个 40 位十六进制地址。
func ExtractAddress(message string) string {
	return addressPattern.FindString(message)
}

// ExtractTransactionHash 返回消息中第一个 64 位十六进制哈希。
func ExtractTransactionHash(message string) string {
	return txHashPattern.FindString(message)
}
