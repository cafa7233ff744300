package analysis

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainScope-Agent/internal/blockscout"
)

func TestAddressRiskScore(t *testing.T) {
	wei := func(s string) blockscout.Amount {
		v, ok := new(big.Int).SetString(s, 10)
		require.True(t, ok)
		return blockscout.NewAmount(v)
	}
	cases := []struct {
		name    string
		info    *blockscout.AddressInfo
		txCount int
		want    int
	}{
		{name: "nil", info: nil, want: 0},
		{name: "clean", info: &blockscout.AddressInfo{BasicInfo: blockscout.BasicInfo{Reputation: "ok"}}, want: 0},
		{
			name: "scam with warning",
			info: &blockscout.AddressInfo{BasicInfo: blockscout.BasicInfo{IsScam: true, Reputation: "warning"}},
			want: 8,
		},
		{
			name:    "whale with many transactions",
			info:    &blockscout.AddressInfo{BasicInfo: blockscout.BasicInfo{CoinBalance: wei("150000000000000000000")}},
			txCount: 101,
			want:    2,
		},
		{
			name: "sanctioned tag",
			info: &blockscout.AddressInfo{PublicTags: []blockscout.Tag{{Name: "Ronin Bridge Exploiter"}}},
			want: 10,
		},
		{
			name: "capped",
			info: &blockscout.AddressInfo{
				BasicInfo:  blockscout.BasicInfo{IsScam: true, Reputation: "scam", CoinBalance: wei("150000000000000000000")},
				PublicTags: []blockscout.Tag{{Slug: "ofac-sanctioned"}},
			},
			txCount: 500,
			want:    10,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AddressRiskScore(tc.info, tc.txCount))
		})
	}
}

func TestContractRiskTier(t *testing.T) {
	level, _ := ContractRiskTier(blockscout.BasicInfo{IsScam: true, IsVerified: true})
	assert.Equal(t, RiskHigh, level)

	level, _ = ContractRiskTier(blockscout.BasicInfo{})
	assert.Equal(t, RiskMedium, level)

	level, _ = ContractRiskTier(blockscout.BasicInfo{IsVerified: true, Reputation: "warning"})
	assert.Equal(t, RiskMedium, level)

	level, safety := ContractRiskTier(blockscout.BasicInfo{IsVerified: true, Reputation: "ok"})
	assert.Equal(t, RiskLow, level)
	assert.Equal(t, []string{"Source code is verified", "Reputation is ok"}, safety)
}

func TestContractReport(t *testing.T) {
	c := newTestClassifier()
	info := mustCall(t, blockscout.ToolAddressInfo,
		map[string]any{"chain_id": "84532", "address": testAddress},
		map[string]any{"data": map[string]any{"basic_info": map[string]any{
			"name":            "StockVault",
			"is_contract":     true,
			"is_verified":     true,
			"reputation":      "ok",
			"proxy_type":      "eip1967",
			"implementations": []any{map[string]any{"name": "VaultImpl", "address_hash": "0x01"}},
			"has_logs":        true,
		}}})

	category, text := c.Render("Analyze contract "+testAddress+" on base sepolia", []ToolCall{info})
	require.Equal(t, CategoryContract, category)
	assert.Contains(t, text, "- Chain: Base Sepolia")
	assert.Contains(t, text, "- Type: EIP1967 Proxy")
	assert.Contains(t, text, "- VaultImpl: 0x01")
	assert.Contains(t, text, "- Risk Level: LOW")
	assert.Contains(t, text, "- APPEARS SAFE based on available data")
	assert.Contains(t, text, "Transaction history was not retrieved.")

	txs := transactionsCall(t, "84532", "buyStock", fixedNow, "1", "1", "1")
	_, withTxs := c.Render("Analyze contract "+testAddress+" on base sepolia", []ToolCall{info, txs})
	assert.Contains(t, withTxs, "- Transactions Retrieved: 3")
	assert.Contains(t, withTxs, "  - buyStock: 3 (100.0%)")
	assert.NotContains(t, withTxs, "**NOTE:**")

	_, missing := c.Render("Analyze contract "+testAddress, nil)
	assert.Contains(t, missing, "**Insufficient Data**")
}

func TestRiskReport(t *testing.T) {
	c := newTestClassifier()
	fees := make([]string, 60)
	for i := range fees {
		fees[i] = "1"
	}
	calls := []ToolCall{
		transactionsCall(t, "1", "transfer", fixedNow.AddDate(0, 0, -30), fees...),
		mustCall(t, blockscout.ToolAddressInfo,
			map[string]any{"chain_id": "1", "address": testAddress},
			map[string]any{"data": map[string]any{"basic_info": map[string]any{"is_scam": true}}}),
	}

	category, text := c.Render("Is "+testAddress+" suspicious?", calls)
	require.Equal(t, CategoryRisk, category)
	assert.Contains(t, text, "**RISK LEVEL: MEDIUM**")
	assert.Contains(t, text, "- High transaction volume on Ethereum Mainnet (60 txs)")
	assert.Contains(t, text, "- Ethereum Mainnet: 5/10")
	assert.Contains(t, text, "- Overall: 5/10")
}
