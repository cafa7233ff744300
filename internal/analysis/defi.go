package analysis

import (
	"slices"
	"strings"
)

// protocolPattern 把方法名映射到协议类别，按顺序匹配。
type protocolPattern struct {
	category string
	methods  []string
}

var defiPatterns = []protocolPattern{
	{category: "Vault/Trading", methods: []string{"buyStock", "sellStock", "listAndDepositInitialStock"}},
	{category: "DEX/AMM", methods: []string{"swap", "addLiquidity", "removeLiquidity", "swapExactTokensForTokens"}},
	{category: "Lending", methods: []string{"supply", "borrow", "repay", "withdraw", "claim"}},
	{category: "Staking", methods: []string{"stake", "unstake", "createLock", "withdrawAll"}},
	{category: "Bridge", methods: []string{"execute", "setConfig", "setEnforcedOptions"}},
	{category: "Token", methods: []string{"approve", "transfer", "transferFrom"}},
}

// protocolCategory 返回方法所属的协议类别，未知方法返回空串。
func protocolCategory(method string) string {
	for _, p := range defiPatterns {
		if slices.Contains(p.methods, method) {
			return p.category
		}
	}
	return ""
}

// protocolName 根据方法名推断合约的名称。
func protocolName(contract, method string) string {
	switch {
	case strings.Contains(method, "Stock"):
		return "Vault Trading Contract"
	case strings.Contains(method, "Config"), strings.Contains(method, "execute"):
		return "LayerZero Bridge"
	case strings.Contains(method, "Lock"), strings.Contains(method, "withdraw"):
		return "Staking Protocol"
	default:
		return "Contract " + shorten(contract, 8)
	}
}

type protocolUse struct {
	chain        string
	contract     string
	name         string
	category     string
	interactions int
	methods      []string
	lastUsed     string
}

func (c *Classifier) defiReport(r request) string {
	out := &report{}
	out.line("**DEFI PROTOCOL INTERACTIONS**")
	addressLine(out, "Address", r.address)
	out.blank()

	var uses []*protocolUse
	index := make(map[string]*protocolUse)
	categories := make(map[string]bool)
	for _, d := range BuildChainData(r.calls, c.catalog) {
		for _, tx := range d.Transactions {
			category := protocolCategory(tx.Method)
			if category == "" || tx.To.Hash == "" {
				continue
			}
			key := d.ChainID + "|" + strings.ToLower(tx.To.Hash)
			use, ok := index[key]
			if !ok {
				use = &protocolUse{
					chain:    d.Name,
					contract: tx.To.Hash,
					name:     protocolName(tx.To.Hash, tx.Method),
					category: category,
				}
				index[key] = use
				uses = append(uses, use)
			}
			use.interactions++
			if !slices.Contains(use.methods, tx.Method) {
				use.methods = append(use.methods, tx.Method)
			}
			if ts, ok := tx.Time(); ok {
				if day := formatDate(ts); day > use.lastUsed {
					use.lastUsed = day
				}
			}
			categories[category] = true
		}
	}

	if len(uses) == 0 {
		out.line("**No DeFi Protocol Interactions Found**")
		out.line("No recognised protocol methods appear in the retrieved transactions.")
		return out.String()
	}

	var chains []string
	for _, use := range uses {
		if !slices.Contains(chains, use.chain) {
			chains = append(chains, use.chain)
		}
	}
	for _, name := range chains {
		out.line("**%s:**", name)
		for _, use := range uses {
			if use.chain != name {
				continue
			}
			out.line("- **%s** (%s)", use.name, use.category)
			out.line("  - Contract: %s", use.contract)
			out.line("  - Interactions: %d", use.interactions)
			out.line("  - Methods: %s", strings.Join(use.methods, ", "))
			out.line("  - Last Used: %s", orDefault(use.lastUsed, "Unknown"))
		}
		out.blank()
	}

	var seen []string
	for _, p := range defiPatterns {
		if categories[p.category] {
			seen = append(seen, p.category)
		}
	}
	out.line("**SUMMARY:**")
	out.line("- Total Protocols: %d", len(uses))
	out.line("- Chains: %d", len(chains))
	out.line("- Categories: %s", strings.Join(seen, ", "))
	return out.String()
}
