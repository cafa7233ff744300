package analysis

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainScope-Agent/internal/blockscout"
	"ChainScope-Agent/internal/chain"
)

const (
	testAddress = "0xB6C58FDB4BBffeD7B7224634AB932518a29e4C4b"
	testTxHash  = "0x7a3b5c1d9e2f4a6b8c0d1e3f5a7b9c1d3e5f7a9b1c3d5e7f9a1b3c5d7e9f1a3b"
)

var fixedNow = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func newTestClassifier() *Classifier {
	return NewClassifier(chain.Default(), WithClock(func() time.Time { return fixedNow }))
}

func mustCall(t *testing.T, tool string, args map[string]any, result any) ToolCall {
	t.Helper()
	call, err := NewToolCall(tool, args, result, nil)
	require.NoError(t, err)
	return call
}

// transactionsCall 构造一条交易列表记录，每个 fee 对应一笔交易。
func transactionsCall(t *testing.T, chainID, method string, ts time.Time, fees ...string) ToolCall {
	t.Helper()
	items := make([]any, 0, len(fees))
	for i, fee := range fees {
		items = append(items, map[string]any{
			"hash":      fmt.Sprintf("0x%02d", i),
			"from":      testAddress,
			"to":        "0x00000000000000000000000000000000000000aa",
			"fee":       fee,
			"method":    method,
			"timestamp": ts.Format(time.RFC3339),
		})
	}
	return mustCall(t, blockscout.ToolTransactions,
		map[string]any{"chain_id": chainID, "address": testAddress},
		map[string]any{"data": items})
}

func TestReportRawLinesAreNotFormatted(t *testing.T) {
	out := &report{}
	out.raw("- 100% Mainnet: balance 1 ETH")
	out.raw("| a | b |")
	out.line("share %s%%", "50")
	assert.Equal(t, "- 100% Mainnet: balance 1 ETH\n| a | b |\nshare 50%", out.String())
}

func TestClassifyPriority(t *testing.T) {
	c := newTestClassifier()
	cases := []struct {
		message string
		want    Category
	}{
		{"Compare transaction " + testTxHash + " on ethereum vs base", CategoryTransactionHash},
		{"Assess risk of transaction " + testTxHash, CategoryTransactionHash},
		{"Which defi protocols has " + testAddress + " interacted with?", CategoryDeFiProtocols},
		{"Compare " + testAddress + " on ethereum vs base", CategoryChainComparison},
		{"Compare activity for " + testAddress + " across all chains", CategoryActivityRanking},
		{"What tokens does " + testAddress + " hold?", CategoryTokenHoldings},
		{"Give me a gas spend breakdown for " + testAddress, CategoryGas},
		{"Generate a comprehensive report for " + testAddress, CategoryComprehensive},
		{"Is " + testAddress + " suspicious?", CategoryRisk},
		{"Analyze contract " + testAddress, CategoryContract},
		{"Show the portfolio of " + testAddress, CategoryPortfolio},
		{"Which chain is " + testAddress + " most active on?", CategoryActivityRanking},
		{"Show activity on base sepolia for " + testAddress, CategorySpecificChain},
		{"Hello there", CategoryGeneric},
	}
	for _, tc := range cases {
		t.Run(string(tc.want), func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.message), tc.message)
		})
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	c := newTestClassifier()
	ts := fixedNow.Add(-48 * time.Hour)
	calls := []ToolCall{
		transactionsCall(t, "1", "approve", ts, "200000000000000", "300000000000000"),
		transactionsCall(t, "10", "", ts, "100000000000000"),
	}
	message := "Generate a comprehensive report for " + testAddress

	category, first := c.Render(message, calls)
	_, second := c.Render(message, calls)
	assert.Equal(t, CategoryComprehensive, category)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "Generated: 2025-01-10")
	assert.Contains(t, first, "- Total Gas Spent: 0.0006 ETH")
	assert.Contains(t, first, "- Chain Coverage: 2/5 major chains")
}

func TestComparisonReport(t *testing.T) {
	c := newTestClassifier()
	ts := fixedNow.Add(-48 * time.Hour)
	calls := []ToolCall{
		transactionsCall(t, "1", "transfer", ts,
			"200000000000000", "200000000000000", "200000000000000", "200000000000000", "200000000000000"),
		transactionsCall(t, "84532", "approve", ts, "150000000000000", "150000000000000"),
	}

	category, text := c.Render("Compare "+testAddress+" on ethereum vs base", calls)
	require.Equal(t, CategoryChainComparison, category)
	assert.Contains(t, text, "Comparing: Ethereum Mainnet vs Base Sepolia")
	assert.Contains(t, text, "| **Transactions** | 5 | 2 |")
	assert.Contains(t, text, "| **Gas Spent (ETH)** | 0.001 | 0.0003 |")
	assert.Contains(t, text, "| **Days Since Last TX** | 2 | 2 |")
	assert.Contains(t, text, "- **Most Active**: Ethereum Mainnet (5 transactions)")
	assert.Contains(t, text, "- **Total Gas Across Chains**: 0.0013 ETH")
}

func TestComparisonReportWithoutData(t *testing.T) {
	c := newTestClassifier()
	calls := []ToolCall{transactionsCall(t, "10", "transfer", fixedNow, "1")}

	_, text := c.Render("Compare "+testAddress+" on ethereum vs base", calls)
	assert.Contains(t, text, "**No Activity Found**")
}

func TestActivityRankingKeepsTieOrder(t *testing.T) {
	c := newTestClassifier()
	ts := fixedNow.Add(-72 * time.Hour)
	calls := []ToolCall{
		transactionsCall(t, "1", "transfer", ts, "0", "0"),
		transactionsCall(t, "84532", "transfer", ts, "0", "0", "0", "0", "0"),
		transactionsCall(t, "10", "transfer", ts, "0", "0"),
		transactionsCall(t, "42161", "transfer", ts),
	}

	category, text := c.Render("Which chain is "+testAddress+" most active on?", calls)
	require.Equal(t, CategoryActivityRanking, category)
	assert.Contains(t, text, "**MOST ACTIVE CHAIN: Base Sepolia**")
	assert.Contains(t, text, "Last activity: 3 days ago")

	base := strings.Index(text, "1. **Base Sepolia**")
	eth := strings.Index(text, "2. **Ethereum Mainnet**")
	op := strings.Index(text, "3. **Optimism**")
	require.True(t, base >= 0 && eth >= 0 && op >= 0, text)
	assert.Less(t, base, eth)
	assert.Less(t, eth, op)
	assert.NotContains(t, text, "Arbitrum One")
	assert.Contains(t, text, "- Total Transactions: 9 across 3 chains")
	assert.Contains(t, text, "- Average per Active Chain: 3.0 transactions")
}

func TestSpecificChainReport(t *testing.T) {
	c := newTestClassifier()
	calls := []ToolCall{
		transactionsCall(t, "84532", "approve", fixedNow, "100", "100", "100"),
		transactionsCall(t, "1", "transfer", fixedNow, "100"),
	}

	_, text := c.Render("Show activity on base sepolia for "+testAddress, calls)
	assert.Contains(t, text, "**BASE SEPOLIA ANALYSIS**")
	assert.Contains(t, text, "- Transactions: 3")
	assert.Contains(t, text, "- Last Activity: Today")
	assert.Contains(t, text, "- approve: 3 (100.0%)")

	_, empty := c.Render("Show activity on optimism for "+testAddress, calls)
	assert.Contains(t, empty, "No transactions detected on Optimism.")
}

func TestGenericReportWithoutData(t *testing.T) {
	_, text := newTestClassifier().Render("Hello there", nil)
	assert.Contains(t, text, "**No Data Available**")
}

func TestTokenReport(t *testing.T) {
	c := newTestClassifier()
	tokens := mustCall(t, blockscout.ToolTokens,
		map[string]any{"chain_id": "1", "address": testAddress},
		map[string]any{"data": []any{
			map[string]any{
				"address":  "0xdAC17F958D2ee523a2206206994597C13D831ec7",
				"name":     "Tether USD",
				"symbol":   "USDT",
				"decimals": "6",
				"balance":  "1234567891",
			},
			map[string]any{"address": "0x01", "balance": "2000000000000000000"},
		}})

	category, text := c.Render("What tokens does "+testAddress+" hold?", []ToolCall{tokens})
	require.Equal(t, CategoryTokenHoldings, category)
	assert.Contains(t, text, "- Total Unique Tokens: 2")
	assert.Contains(t, text, "1. **USDT** - Tether USD")
	assert.Contains(t, text, "   Balance: 1234.567891")
	assert.Contains(t, text, "   Contract: 0xdAC17F95...")
	assert.Contains(t, text, "2. **Unknown** - Unknown Token")
	assert.Contains(t, text, "   Balance: 2")
	assert.Contains(t, text, "   Type: ERC-20")

	_, empty := c.Render("What tokens does "+testAddress+" hold?", nil)
	assert.Contains(t, empty, "**No Token Data Available**")
}

func TestTransactionHashReport(t *testing.T) {
	c := newTestClassifier()
	info := mustCall(t, blockscout.ToolTransactionInfo,
		map[string]any{"chain_id": "84532", "transaction_hash": testTxHash},
		map[string]any{"data": map[string]any{
			"hash":         testTxHash,
			"status":       "ok",
			"block_number": 123456,
			"from":         testAddress,
			"to":           "0x00000000000000000000000000000000000000aa",
			"value":        "0",
			"gas_used":     "52000",
			"gas_limit":    "104000",
			"fee":          "93053538291000",
			"timestamp":    "2025-01-08T12:00:00Z",
			"method":       "approve",
			"decoded_input": map[string]any{
				"method_call": "approve(address spender, uint256 amount)",
				"parameters": []any{
					map[string]any{"name": "amount", "type": "uint256", "value": "1000000000000"},
				},
			},
			"transaction_types": []any{"contract_call"},
			"has_logs":          true,
		}})

	category, text := c.Render("Explain transaction "+testTxHash+" on base sepolia", []ToolCall{info})
	require.Equal(t, CategoryTransactionHash, category)
	assert.Contains(t, text, "Chain: Base Sepolia")
	assert.Contains(t, text, "- Status: Success")
	assert.Contains(t, text, "- Gas Used: 52,000")
	assert.Contains(t, text, "- Gas Fee: 0.000093053538291 ETH")
	assert.Contains(t, text, "- Timestamp: 2025-01-08 12:00:00 UTC")
	assert.Contains(t, text, "1. amount (uint256): 1000000000000 (1,000,000,000,000)")
	assert.Contains(t, text, "- CONTRACT CALL")
	assert.Contains(t, text, "- Type: Token Approval")
	assert.Contains(t, text, "- Approval event")
	assert.Contains(t, text, "- Gas efficiency: 50.0% of gas limit used")

	_, missing := c.Render("Explain transaction "+testTxHash, nil)
	assert.Contains(t, missing, "**No Transaction Data Available**")
}

func TestDeFiReport(t *testing.T) {
	c := newTestClassifier()
	calls := []ToolCall{
		transactionsCall(t, "84532", "buyStock", fixedNow, "1", "1"),
		transactionsCall(t, "1", "approve", fixedNow, "1"),
	}

	_, text := c.Render("Which defi protocols has "+testAddress+" interacted with?", calls)
	assert.Contains(t, text, "- **Vault Trading Contract** (Vault/Trading)")
	assert.Contains(t, text, "  - Interactions: 2")
	assert.Contains(t, text, "  - Last Used: 2025-01-10")
	assert.Contains(t, text, "- Categories: Vault/Trading, Token")

	_, none := c.Render("Which defi protocols has "+testAddress+" interacted with?", nil)
	assert.Contains(t, none, "**No DeFi Protocol Interactions Found**")
}

func TestExtractors(t *testing.T) {
	assert.Equal(t, testAddress, ExtractAddress("look at "+testAddress+" please"))
	assert.Equal(t, testTxHash, ExtractTransactionHash("tx "+testTxHash))
	assert.Empty(t, ExtractAddress("no address here"))
}
