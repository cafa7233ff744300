package analysis

import (
	"math/big"
	"strconv"
	"strings"

	"ChainScope-Agent/internal/blockscout"
	"ChainScope-Agent/internal/units"
)

const tokensPerChain = 10

func (c *Classifier) comparisonReport(r request) string {
	out := &report{}
	out.line("**CHAIN COMPARISON ANALYSIS**")
	addressLine(out, "Address", r.address)
	if len(r.chains) >= 2 {
		names := make([]string, len(r.chains))
		for i, ch := range r.chains {
			names[i] = ch.Name
		}
		out.line("Comparing: %s", strings.Join(names, " vs "))
	}
	out.blank()

	relevant := filterChains(BuildChainData(r.calls, c.catalog), r.chains)
	if len(relevant) == 0 {
		out.line("**No Activity Found**")
		out.line("No transactions found on the requested chains.")
		return out.String()
	}

	now := c.now()
	header := []string{"Metric"}
	txs := []string{"**Transactions**"}
	gas := []string{"**Gas Spent (ETH)**"}
	avg := []string{"**Avg Gas/TX**"}
	days := []string{"**Days Since Last TX**"}
	top := []string{"**Top Activity**"}
	for _, d := range relevant {
		header = append(header, d.Name)
		txs = append(txs, strconv.Itoa(d.TxCount))
		gas = append(gas, d.GasEther())
		if d.TxCount > 0 {
			avg = append(avg, units.AverageEther(d.GasWei, d.TxCount))
		} else {
			avg = append(avg, "0")
		}
		if n := daysSince(now, d.MostRecent); n >= 0 {
			days = append(days, strconv.Itoa(n))
		} else {
			days = append(days, "N/A")
		}
		if tc, ok := d.TopType(); ok {
			top = append(top, tc.Type)
		} else {
			top = append(top, "N/A")
		}
	}

	out.line("**HEAD-TO-HEAD COMPARISON:**")
	out.blank()
	for _, row := range [][]string{header, nil, txs, gas, avg, days, top} {
		if row == nil {
			out.raw("|" + strings.Repeat("---|", len(relevant)+1))
			continue
		}
		out.raw("| " + strings.Join(row, " | ") + " |")
	}
	out.blank()

	winner, _ := mostActive(relevant)
	out.line("**COMPARISON RESULTS:**")
	out.line("- **Most Active**: %s (%d transactions)", winner.Name, winner.TxCount)
	recentIdx := -1
	for i, d := range relevant {
		if d.HasTimestamps() && (recentIdx < 0 || d.MostRecent.After(relevant[recentIdx].MostRecent)) {
			recentIdx = i
		}
	}
	if recentIdx >= 0 {
		recent := relevant[recentIdx]
		out.line("- **Most Recent Activity**: %s (%d days ago)", recent.Name, daysSince(now, recent.MostRecent))
	}
	out.line("- **Total Gas Across Chains**: %s ETH", units.FormatEther(totalGas(relevant)))
	return out.String()
}

func (c *Classifier) tokenReport(r request) string {
	out := &report{}
	out.line("**TOKEN HOLDINGS ANALYSIS**")
	addressLine(out, "Address", r.address)
	out.blank()

	tokenCalls := callsFor(r.calls, blockscout.ToolTokens)
	if len(tokenCalls) == 0 {
		out.line("**No Token Data Available**")
		out.line("No token holdings information was retrieved.")
		return out.String()
	}

	type chainTokens struct {
		name   string
		tokens blockscout.TokenList
	}
	var byChain []chainTokens
	total := 0
	for _, call := range tokenCalls {
		tokens := call.Decoded().Tokens
		if len(tokens) == 0 {
			continue
		}
		byChain = append(byChain, chainTokens{name: c.catalog.Name(call.ChainID()), tokens: tokens})
		total += len(tokens)
	}

	out.line("**PORTFOLIO OVERVIEW:**")
	out.line("- Total Unique Tokens: %d", total)
	out.line("- Active on %d chains", len(byChain))
	out.blank()

	for _, group := range byChain {
		out.line("**%s (%d tokens):**", group.name, len(group.tokens))
		for i, token := range group.tokens {
			if i == tokensPerChain {
				break
			}
			out.line("%d. **%s** - %s", i+1, orDefault(token.Symbol, "Unknown"), orDefault(token.Name, "Unknown Token"))
			out.line("   Balance: %s", formatTokenBalance(token.Balance.String(), token.Decimals.String()))
			out.line("   Type: %s", orDefault(token.Type, "ERC-20"))
			out.line("   Contract: %s", shorten(token.Address, 10))
		}
		if extra := len(group.tokens) - tokensPerChain; extra > 0 {
			out.line("   ... and %d more tokens", extra)
		}
		out.blank()
	}

	if transfers := tokenTransferActivity(BuildChainData(r.calls, c.catalog)); len(transfers) > 0 {
		out.line("**TOKEN TRANSFER ACTIVITY:**")
		for _, line := range transfers {
			out.line("- %s", line)
		}
	}
	return strings.TrimRight(out.String(), "\n")
}

func tokenTransferActivity(data []ChainData) []string {
	var lines []string
	for _, d := range data {
		if n := d.TypeCountOf("transfer"); n > 0 {
			lines = append(lines, d.Name+": "+strconv.Itoa(n)+" token transfers")
		}
		if n := d.TypeCountOf("approve"); n > 0 {
			lines = append(lines, d.Name+": "+strconv.Itoa(n)+" token approvals")
		}
	}
	return lines
}

// formatTokenBalance 按 decimals 换算余额，小数部分最多保留 6 位；无法解析时原样返回。
func formatTokenBalance(raw, decimals string) string {
	amount, ok := units.ParseWei(raw)
	if !ok {
		return orDefault(raw, "0")
	}
	places := 18
	if d, err := strconv.Atoi(strings.TrimSpace(decimals)); err == nil && d >= 0 {
		places = d
	}
	return units.FormatUnitsTruncated(amount, places, units.DisplayDecimals)
}

func (c *Classifier) activityRankingReport(r request) string {
	out := &report{}
	now := c.now()
	data := filterChains(BuildChainData(r.calls, c.catalog), r.chains)
	active := activeChains(rankByActivity(data))

	if len(active) > 0 {
		top := active[0]
		out.line("**MOST ACTIVE CHAIN: %s**", top.Name)
		out.line("%d transactions, %s ETH gas spent", top.TxCount, top.GasEther())
		if top.HasTimestamps() {
			out.line("Last activity: %s", describeDays(daysSince(now, top.MostRecent)))
		}
		out.blank()
	}

	if len(active) > 1 {
		out.line("**COMPLETE ACTIVITY RANKING:**")
		for i, d := range active {
			recency := "Unknown"
			if d.HasTimestamps() {
				recency = strconv.Itoa(daysSince(now, d.MostRecent)) + "d ago"
			}
			out.line("%d. **%s**", i+1, d.Name)
			out.line("    %d txs - %s ETH gas - Last: %s", d.TxCount, d.GasEther(), recency)
		}
		out.blank()
	}

	txs := totalTxs(active)
	out.line("**ACTIVITY SUMMARY:**")
	out.line("- Total Transactions: %d across %d chains", txs, len(active))
	out.line("- Total Gas Spent: %s ETH", units.FormatEther(totalGas(active)))
	if len(active) > 0 {
		perChain := big.NewRat(int64(txs), int64(len(active)))
		out.line("- Average per Active Chain: %s transactions", units.FormatFixed(perChain, 1))
	}
	return out.String()
}

func (c *Classifier) transactionHashReport(r request) string {
	out := &report{}
	out.line("**TRANSACTION ANALYSIS**")
	out.line("Hash: %s", ExtractTransactionHash(r.message))
	if len(r.chains) > 0 {
		out.line("Chain: %s", r.chains[0].Name)
	}
	out.blank()

	call, ok := firstCall(r.calls, blockscout.ToolTransactionInfo)
	if !ok {
		out.line("**No Transaction Data Available**")
		out.line("Transaction information could not be retrieved.")
		return out.String()
	}
	tx := call.Decoded().Transaction
	if tx == nil {
		out.line("**Invalid Transaction**")
		out.line("Transaction not found or invalid hash.")
		return out.String()
	}

	status := "Failed"
	if tx.Status == "ok" {
		status = "Success"
	}
	ts, hasTime := tx.Time()
	out.line("**TRANSACTION DETAILS:**")
	out.line("- Status: %s", status)
	out.line("- Block: %s", orDefault(tx.BlockNumber.String(), "N/A"))
	out.line("- From: %s", orDefault(tx.From.Hash, "N/A"))
	out.line("- To: %s", orDefault(tx.To.Hash, "N/A"))
	out.line("- Value: %s ETH", units.FormatEther(tx.Value.Int()))
	if tx.GasUsed.Valid() {
		out.line("- Gas Used: %s", groupDigits(tx.GasUsed.Int()))
	} else {
		out.line("- Gas Used: N/A")
	}
	out.line("- Gas Fee: %s ETH", units.FormatEther(tx.Fee.Int()))
	out.line("- Timestamp: %s", formatTimestamp(ts, hasTime, tx.Timestamp))
	out.blank()

	if in := tx.DecodedInput; in != nil {
		out.line("**METHOD CALL:**")
		out.line("- Function: %s", orDefault(in.MethodCall, tx.Method))
		if len(in.Parameters) > 0 {
			out.line("- Parameters:")
			for i, p := range in.Parameters {
				out.line("  %d. %s (%s): %s", i+1, p.Name, p.Type, formatParameter(p))
			}
		}
		out.blank()
	}

	if n := len(tx.TokenTransfers); n > 0 {
		out.line("**TOKEN TRANSFERS (%d):**", n)
		for i, transfer := range tx.TokenTransfers {
			token := transfer.Token
			amount := formatTokenBalance(transfer.Total.Value.String(), token.Decimals.String())
			out.line("%d. **%s** (%s)", i+1, token.Symbol, token.Name)
			out.line("   - Amount: %s %s", amount, token.Symbol)
			out.line("   - From: %s", transfer.From.Hash)
			out.line("   - To: %s", transfer.To.Hash)
			out.line("   - Token Contract: %s", token.AddressHash)
			out.blank()
		}
	}

	if len(tx.TransactionTypes) > 0 {
		out.line("**TRANSACTION TYPES:**")
		for _, kind := range tx.TransactionTypes {
			out.line("- %s", strings.ToUpper(strings.ReplaceAll(kind, "_", " ")))
		}
		out.blank()
	}

	method := tx.Method
	if method != "" && method != "transfer" {
		out.line("**CONTRACT INTERACTION:**")
		out.line("- Contract: %s", tx.To.Hash)
		out.line("- Method: %s", method)
		out.line("- Type: %s", interactionType(method))
		out.blank()
	}

	if tx.HasLogs == nil || *tx.HasLogs || len(tx.TokenTransfers) > 0 {
		out.line("**EVENTS EMITTED:**")
		if n := len(tx.TokenTransfers); n > 0 {
			out.line("- %d Token Transfer event(s)", n)
		}
		if strings.Contains(method, "buy") || strings.Contains(method, "sell") {
			out.line("- Trade execution event")
		}
		if strings.Contains(method, "approve") {
			out.line("- Approval event")
		}
		out.line("- View full event logs on block explorer for complete details")
		out.blank()
	}

	out.line("**SUMMARY:**")
	switch {
	case tx.DecodedInput != nil && strings.Contains(tx.DecodedInput.MethodCall, "buyStock"):
		for _, transfer := range tx.TokenTransfers {
			if transfer.To.Hash == tx.From.Hash {
				amount := formatTokenBalance(transfer.Total.Value.String(), transfer.Token.Decimals.String())
				out.line("- Successfully purchased %s %s tokens", amount, transfer.Token.Symbol)
				break
			}
		}
	case method == "transfer" || len(tx.TokenTransfers) > 0:
		out.line("- Token transfer transaction executed successfully")
	default:
		out.line("- Smart contract interaction completed successfully")
	}
	if tx.GasUsed.Valid() && tx.GasLimit.Valid() && tx.GasLimit.Int().Sign() > 0 {
		out.line("- Gas efficiency: %s%% of gas limit used", units.Percent(tx.GasUsed.Int(), tx.GasLimit.Int()))
	} else {
		out.line("- Gas efficiency: N/A")
	}
	return out.String()
}

func interactionType(method string) string {
	m := strings.ToLower(method)
	switch {
	case strings.Contains(m, "buy"), strings.Contains(m, "sell"), strings.Contains(m, "trade"):
		return "Trading/Exchange"
	case strings.Contains(m, "stake"), strings.Contains(m, "lock"), strings.Contains(m, "deposit"):
		return "Staking/DeFi"
	case strings.Contains(m, "approve"):
		return "Token Approval"
	case strings.Contains(m, "transfer"):
		return "Token Transfer"
	default:
		return "Smart Contract Call"
	}
}

func formatParameter(p blockscout.Parameter) string {
	value := p.Value.String()
	if p.Type == "uint256" && len(value) > 10 {
		if n, ok := units.ParseWei(value); ok {
			return value + " (" + groupDigits(n) + ")"
		}
	}
	return value
}

func (c *Classifier) gasReport(r request) string {
	out := &report{}
	out.line("**GAS SPEND ANALYSIS**")
	addressLine(out, "Address", r.address)
	out.blank()

	data := BuildChainData(r.calls, c.catalog)
	if len(data) == 0 {
		out.line("**No Transaction Data Available**")
		return out.String()
	}

	total := totalGas(data)
	txs := totalTxs(data)
	out.line("**GAS SPEND SUMMARY:**")
	out.line("- Total Gas Across All Chains: %s ETH", units.FormatEther(total))
	out.line("- Total Transactions: %d", txs)
	if txs > 0 {
		out.line("- Average Gas per Transaction: %s ETH", units.AverageEther(total, txs))
	} else {
		out.line("- Average Gas per Transaction: 0 ETH")
	}
	out.blank()

	active := activeChains(data)
	sortByGas(active)
	out.line("**GAS EFFICIENCY BY CHAIN:**")
	for i, d := range active {
		out.line("%d. **%s**", i+1, d.Name)
		out.line("   - Total: %s ETH (%s%% of total)", d.GasEther(), units.Percent(d.GasWei, total))
		out.line("   - Average: %s ETH per transaction", units.AverageEther(d.GasWei, d.TxCount))
		out.line("   - Transactions: %d", d.TxCount)
	}
	return out.String()
}

func sortByGas(data []ChainData) {
	// 插入排序保持稳定，链数量很小。
	for i := 1; i < len(data); i++ {
		for j := i; j > 0 && data[j].GasWei.Cmp(data[j-1].GasWei) > 0; j-- {
			data[j], data[j-1] = data[j-1], data[j]
		}
	}
}

func (c *Classifier) comprehensiveReport(r request) string {
	out := &report{}
	data := BuildChainData(r.calls, c.catalog)
	active := activeChains(data)

	out.line("**COMPREHENSIVE BLOCKCHAIN REPORT**")
	addressLine(out, "Address", r.address)
	out.line("Generated: %s", formatDate(c.now()))
	out.blank()

	out.line("**EXECUTIVE SUMMARY:**")
	out.line("- Total Transactions: %d across %d chains", totalTxs(data), len(active))
	out.line("- Total Gas Spent: %s ETH", units.FormatEther(totalGas(data)))
	out.line("- Chain Coverage: %d/%d major chains", len(active), c.catalog.Len())
	out.blank()

	out.line("**CHAIN-BY-CHAIN BREAKDOWN:**")
	for _, d := range data {
		out.blank()
		out.line("**%s:**", d.Name)
		if d.TxCount == 0 {
			out.line("   - Status: No activity detected")
			continue
		}
		out.line("   - Transactions: %d", d.TxCount)
		out.line("   - Gas Spent: %s ETH", d.GasEther())
		out.line("   - Last Activity: %s", formatDate(d.MostRecent))
		if tc, ok := d.TopType(); ok {
			out.line("   - Primary Activity: %s (%d transactions)", tc.Type, tc.Count)
		}
	}

	if balances := c.balanceLines(r.calls); len(balances) > 0 {
		out.blank()
		out.line("**NATIVE BALANCES:**")
		for _, line := range balances {
			out.raw(line)
		}
	}
	return out.String()
}

// balanceLines 汇总每条链的 get_address_info 结果。
func (c *Classifier) balanceLines(calls []ToolCall) []string {
	var lines []string
	for _, call := range callsFor(calls, blockscout.ToolAddressInfo) {
		info := call.Decoded().AddressInfo
		if info == nil {
			continue
		}
		basic := info.BasicInfo
		lines = append(lines, "- "+c.catalog.Name(call.ChainID())+": balance "+
			units.FormatEther(basic.CoinBalance.Int())+" ETH, tokens="+
			strings.ToLower(yesNo(basic.HasTokens))+", token_transfers="+
			strings.ToLower(yesNo(basic.HasTokenTransfers)))
	}
	return lines
}

func (c *Classifier) specificChainReport(r request) string {
	out := &report{}
	name := "Unknown"
	id := ""
	if len(r.chains) > 0 {
		name, id = r.chains[0].Name, r.chains[0].ID
	}
	out.line("**%s ANALYSIS**", strings.ToUpper(name))
	addressLine(out, "Address", r.address)
	out.blank()

	var target *ChainData
	for _, d := range BuildChainData(r.calls, c.catalog) {
		if d.ChainID == id {
			target = &d
			break
		}
	}
	if target == nil || target.TxCount == 0 {
		out.line("**No Activity Found**")
		out.line("No transactions detected on %s.", name)
		return out.String()
	}

	out.line("**ACTIVITY OVERVIEW:**")
	out.line("- Transactions: %d", target.TxCount)
	out.line("- Gas Spent: %s ETH", target.GasEther())
	out.line("- Average Gas/TX: %s ETH", units.AverageEther(target.GasWei, target.TxCount))
	if target.HasTimestamps() {
		out.line("- Last Activity: %s", describeDays(daysSince(c.now(), target.MostRecent)))
	}
	out.blank()
	out.line("**TRANSACTION TYPES:**")
	count := big.NewInt(int64(target.TxCount))
	for _, tc := range target.SortedTypes() {
		out.line("- %s: %d (%s%%)", tc.Type, tc.Count, units.Percent(big.NewInt(int64(tc.Count)), count))
	}
	return out.String()
}

func (c *Classifier) genericReport(r request) string {
	out := &report{}
	out.line("**BLOCKCHAIN ANALYSIS**")
	addressLine(out, "Address", r.address)
	out.blank()

	data := BuildChainData(r.calls, c.catalog)
	balances := c.balanceLines(r.calls)
	if len(data) == 0 && len(balances) == 0 {
		out.line("**No Data Available**")
		out.line("No transaction or address data found.")
		return out.String()
	}

	if len(data) > 0 {
		active := activeChains(data)
		out.line("**SUMMARY:**")
		out.line("- Total Transactions: %d", totalTxs(data))
		out.line("- Total Gas Spent: %s ETH", units.FormatEther(totalGas(data)))
		out.line("- Active Chains: %d", len(active))
		if top, ok := mostActive(active); ok {
			out.line("- Most Active Chain: %s (%d txs)", top.Name, top.TxCount)
		}
	}
	if len(balances) > 0 {
		if len(data) > 0 {
			out.blank()
		}
		out.line("**MULTI-CHAIN BALANCES:**")
		for _, line := range balances {
			out.raw(line)
		}
	}
	return out.String()
}
