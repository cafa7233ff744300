package analysis

import (
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"ChainScope-Agent/internal/blockscout"
	"ChainScope-Agent/internal/units"
)

// RiskLevel 是报告中的风险等级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

const (
	maxRiskScore      = 10
	busyAddressTxs    = 100
	highActivityTxs   = 50
	diverseTypes      = 3
	recentWindowDays  = 7
	topMethodsInBrief = 5
)

var (
	// 100 ETH
	largeBalanceWei   = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sanctionedPattern = regexp.MustCompile(`(?i)sanction|ofac|exploiter|exploit|hack|ronin|bridge.*exploit`)
)

// AddressRiskScore 根据地址信息给出 0-10 的风险分。
// 制裁或攻击相关的标签直接给满分。
func AddressRiskScore(info *blockscout.AddressInfo, txCount int) int {
	if info == nil {
		return 0
	}
	basic := info.BasicInfo
	score := 0
	if basic.IsScam {
		score += 5
	}
	if basic.Reputation != "" && basic.Reputation != "ok" {
		score += 3
	}
	if basic.CoinBalance.Valid() && basic.CoinBalance.Int().Cmp(largeBalanceWei) > 0 {
		score++
	}
	for _, tag := range info.AllTags() {
		if sanctionedPattern.MatchString(tag.Name) || sanctionedPattern.MatchString(tag.Slug) {
			score = maxRiskScore
			break
		}
	}
	if txCount > busyAddressTxs {
		score++
	}
	return min(score, maxRiskScore)
}

// ContractRiskTier 评估合约的安全等级，并返回正面因素。
func ContractRiskTier(basic blockscout.BasicInfo) (RiskLevel, []string) {
	level := RiskLow
	var safety []string
	if basic.IsScam {
		level = RiskHigh
	}
	if basic.IsVerified {
		safety = append(safety, "Source code is verified")
	} else if level == RiskLow {
		level = RiskMedium
	}
	if basic.Reputation == "warning" && level == RiskLow {
		level = RiskMedium
	}
	if basic.Reputation == "ok" {
		safety = append(safety, "Reputation is ok")
	}
	if basic.ProxyType != "" && len(basic.Implementations) > 0 {
		safety = append(safety, "Proxy implementation is published")
	}
	return level, safety
}

func (c *Classifier) riskReport(r request) string {
	out := &report{}
	out.line("**RISK ASSESSMENT**")
	addressLine(out, "Address", r.address)
	out.blank()

	now := c.now()
	data := BuildChainData(r.calls, c.catalog)
	var risks, safety []string
	for _, d := range data {
		if d.TxCount > highActivityTxs {
			risks = append(risks, fmt.Sprintf("High transaction volume on %s (%d txs)", d.Name, d.TxCount))
		}
		if len(d.Types) > diverseTypes {
			safety = append(safety, fmt.Sprintf("Diverse transaction types on %s", d.Name))
		}
		if days := daysSince(now, d.MostRecent); days >= 0 && days <= recentWindowDays {
			safety = append(safety, fmt.Sprintf("Recent activity on %s", d.Name))
		}
	}

	level := RiskLow
	switch {
	case len(risks) > 3:
		level = RiskHigh
	case len(risks) > len(safety):
		level = RiskMedium
	}

	out.line("**RISK LEVEL: %s**", level)
	out.blank()
	if len(risks) > 0 {
		out.line("**RISK FACTORS:**")
		for _, f := range risks {
			out.line("- %s", f)
		}
		out.blank()
	}
	if len(safety) > 0 {
		out.line("**SAFETY FACTORS:**")
		for _, f := range safety {
			out.line("- %s", f)
		}
		out.blank()
	}

	if scores := c.addressScores(r.calls, data); len(scores) > 0 {
		out.line("**ADDRESS RISK SCORE:**")
		sum := 0
		for _, s := range scores {
			out.line("- %s: %d/10", s.name, s.score)
			sum += s.score
		}
		overall := new(big.Rat).SetFrac64(int64(sum), int64(len(scores)))
		out.line("- Overall: %s/10", units.FormatFixed(overall, 0))
		out.blank()
	}

	out.line("**RECOMMENDATIONS:**")
	switch level {
	case RiskHigh:
		out.line("- Exercise extreme caution when interacting with this address")
		out.line("- Verify counterparties before sending funds")
	case RiskMedium:
		out.line("- Monitor activity on the busiest chains")
		out.line("- Review large or unusual transactions")
	default:
		out.line("- No significant risk indicators detected")
		out.line("- Continue standard security practices")
	}
	return out.String()
}

type chainScore struct {
	name  string
	score int
}

func (c *Classifier) addressScores(calls []ToolCall, data []ChainData) []chainScore {
	txByChain := make(map[string]int, len(data))
	for _, d := range data {
		txByChain[d.ChainID] += d.TxCount
	}
	var scores []chainScore
	for _, call := range callsFor(calls, blockscout.ToolAddressInfo) {
		info := call.Decoded().AddressInfo
		if info == nil {
			continue
		}
		id := call.ChainID()
		scores = append(scores, chainScore{
			name:  c.catalog.Name(id),
			score: AddressRiskScore(info, txByChain[id]),
		})
	}
	return scores
}

func (c *Classifier) contractReport(r request) string {
	out := &report{}
	out.line("**SMART CONTRACT ANALYSIS**")
	addressLine(out, "Contract", r.address)
	out.blank()

	infoCall, ok := firstCall(r.calls, blockscout.ToolAddressInfo)
	var info *blockscout.AddressInfo
	if ok {
		info = infoCall.Decoded().AddressInfo
	}
	if info == nil {
		out.line("**Insufficient Data**")
		out.line("Contract information could not be retrieved.")
		return out.String()
	}
	basic := info.BasicInfo

	contractType := "Standard Contract"
	if basic.ProxyType != "" {
		contractType = strings.ToUpper(basic.ProxyType) + " Proxy"
	}
	out.line("**CONTRACT OVERVIEW:**")
	out.line("- Chain: %s", c.catalog.Name(infoCall.ChainID()))
	out.line("- Name: %s", orDefault(basic.Name, "Unknown"))
	out.line("- Type: %s", contractType)
	out.line("- Verified: %s", yesNo(basic.IsVerified))
	out.line("- Scam Flag: %s", yesNo(basic.IsScam))
	out.line("- Reputation: %s", orDefault(basic.Reputation, "Unknown"))
	out.line("- Creator: %s", orDefault(basic.CreatorAddressHash, "Unknown"))
	out.line("- Creation Tx: %s", orDefault(basic.CreationTransactionHash, "Unknown"))
	out.blank()

	if len(basic.Implementations) > 0 {
		out.line("**PROXY IMPLEMENTATION:**")
		for _, impl := range basic.Implementations {
			out.line("- %s: %s", orDefault(impl.Name, "Unnamed"), impl.AddressHash)
		}
		out.blank()
	}

	out.line("**CONTRACT ACTIVITY:**")
	out.line("- Has Logs: %s", yesNo(basic.HasLogs))
	out.line("- Has Token Transfers: %s", yesNo(basic.HasTokenTransfers))
	out.line("- Has Tokens: %s", yesNo(basic.HasTokens))
	out.line("- Balance: %s ETH", units.FormatEther(basic.CoinBalance.Int()))
	out.blank()

	txCall, hasTxCall := firstCall(r.calls, blockscout.ToolTransactions)
	if hasTxCall {
		txs := txCall.Decoded().Transactions
		out.line("**RECENT TRANSACTION ANALYSIS:**")
		if len(txs) == 0 {
			out.line("No recent transaction data available for this contract.")
		} else {
			writeRecentTransactions(out, txs)
		}
		out.blank()
	}

	level, safety := ContractRiskTier(basic)
	out.line("**SECURITY ASSESSMENT:**")
	out.line("- Risk Level: %s", level)
	for _, f := range safety {
		out.line("- %s", f)
	}
	out.blank()

	out.line("**RECOMMENDATIONS:**")
	switch level {
	case RiskHigh:
		out.line("- DO NOT INTERACT: this contract is flagged as a scam")
	case RiskMedium:
		out.line("- PROCEED WITH CAUTION")
		out.line("- Verify the contract source before approving tokens")
		out.line("- Start with small amounts")
	default:
		out.line("- APPEARS SAFE based on available data")
	}
	if basic.IsVerified {
		out.line("- Review verified source code on the block explorer")
	}
	out.line("- Monitor recent transactions for unusual behaviour")
	if basic.HasLogs {
		out.line("- Inspect emitted events to understand contract behaviour")
	}
	if basic.ProxyType != "" {
		out.line("- Proxy contracts can be upgraded; track implementation changes")
	}

	if !hasTxCall {
		out.blank()
		out.line("**NOTE:**")
		out.line("Transaction history was not retrieved. Ask for recent transactions to extend this analysis.")
	}
	return out.String()
}

func writeRecentTransactions(out *report, txs blockscout.TransactionList) {
	out.line("- Transactions Retrieved: %d", len(txs))
	latest := txs[0]
	ts, hasTime := latest.Time()
	out.line("- Most Recent: %s", latest.Hash)
	out.line("  - Method: %s", latest.Kind())
	out.line("  - From: %s", orDefault(latest.From.Hash, "N/A"))
	out.line("  - Value: %s ETH", units.FormatEther(latest.Value.Int()))
	out.line("  - Status: %s", orDefault(latest.Status, "unknown"))
	out.line("  - Time: %s", formatTimestamp(ts, hasTime, latest.Timestamp))

	counts := make(map[string]int)
	var methods []string
	for _, tx := range txs {
		kind := tx.Kind()
		if counts[kind] == 0 {
			methods = append(methods, kind)
		}
		counts[kind]++
	}
	sort.SliceStable(methods, func(i, j int) bool { return counts[methods[i]] > counts[methods[j]] })
	if len(methods) > topMethodsInBrief {
		methods = methods[:topMethodsInBrief]
	}
	total := big.NewInt(int64(len(txs)))
	out.line("- Method Breakdown:")
	for _, m := range methods {
		out.line("  - %s: %d (%s%%)", m, counts[m], units.Percent(big.NewInt(int64(counts[m])), total))
	}
}
