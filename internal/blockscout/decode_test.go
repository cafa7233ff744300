package blockscout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(t *testing.T, text string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(text), &v))
	return v
}

func TestDecodeAddressInfo(t *testing.T) {
	raw := rawJSON(t, `{"data": {"basic_info": {
		"hash": "0xB6C58FDB4BBffeD7B7224634AB932518a29e4C4b",
		"name": "Vault", "is_contract": true, "is_verified": true, "is_scam": false,
		"reputation": "ok", "coin_balance": "150000000000000000000",
		"proxy_type": "eip1967",
		"implementations": [{"name": "VaultImpl", "address_hash": "0x01"}],
		"has_logs": true},
		"public_tags": ["exchange", {"name": "OFAC Sanctioned", "slug": "ofac"}],
		"metadata": {"tags": [{"name": "Hot Wallet"}]}}}`)

	result, err := Decode(ToolAddressInfo, raw)
	require.NoError(t, err)
	require.Equal(t, KindAddressInfo, result.Kind)

	basic := result.AddressInfo.BasicInfo
	assert.Equal(t, "Vault", basic.Name)
	assert.True(t, basic.IsVerified)
	assert.Equal(t, "150000000000000000000", basic.CoinBalance.String())
	assert.Len(t, basic.Implementations, 1)

	tags := result.AddressInfo.AllTags()
	require.Len(t, tags, 3)
	assert.Equal(t, "exchange", tags[0].Name)
	assert.Equal(t, "ofac", tags[1].Slug)
	assert.Equal(t, "Hot Wallet", tags[2].Name)
	assert.Equal(t, raw, result.Raw)
}

func TestDecodeTransactionsAcceptsBothShapes(t *testing.T) {
	bare := rawJSON(t, `{"data": [
		{"hash": "0xa", "from": "0x1", "to": "0x2", "fee": "93053538291000", "method": "approve", "timestamp": "2024-12-23T05:24:11.000000Z"},
		{"hash": "0xb", "from": {"hash": "0x1"}, "to": {"hash": "0x3", "name": "Router"}, "fee": {"value": "174760240158000"}, "type": 2},
		{"hash": "0xc", "fee": null}
	], "pagination": {"next_call": {"tool_name": "get_transactions_by_address", "params": {"cursor": "abc"}}}}`)

	result, err := Decode(ToolTransactions, bare)
	require.NoError(t, err)
	require.Equal(t, KindTransactions, result.Kind)
	require.Len(t, result.Transactions, 3)
	assert.True(t, result.HasNextPage())

	first, second, third := result.Transactions[0], result.Transactions[1], result.Transactions[2]
	assert.Equal(t, "approve", first.Kind())
	assert.Equal(t, "93053538291000", first.Fee.String())
	ts, ok := first.Time()
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	assert.Equal(t, "2", second.Kind())
	assert.Equal(t, "0x3", second.To.Hash)
	assert.Equal(t, "174760240158000", second.Fee.String())

	assert.Equal(t, "transfer", third.Kind())
	assert.False(t, third.Fee.Valid())

	wrapped := rawJSON(t, `{"data": {"items": [{"hash": "0xd"}]}}`)
	result, err = Decode(ToolTransactions, wrapped)
	require.NoError(t, err)
	require.Len(t, result.Transactions, 1)
	assert.False(t, result.HasNextPage())
}

func TestDecodeTokensNestedForm(t *testing.T) {
	raw := rawJSON(t, `{"data": [
		{"address": "0xt1", "symbol": "USDC", "name": "USD Coin", "decimals": "6", "balance": "2500000"},
		{"token": {"address_hash": "0xt2", "symbol": "WETH", "name": "Wrapped Ether", "decimals": 18, "type": "ERC-20"}, "value": "1000000000000000000"}
	]}`)
	result, err := Decode(ToolTokens, raw)
	require.NoError(t, err)
	require.Len(t, result.Tokens, 2)
	assert.Equal(t, "6", result.Tokens[0].Decimals.String())
	assert.Equal(t, "0xt2", result.Tokens[1].Address)
	assert.Equal(t, "18", result.Tokens[1].Decimals.String())
	assert.Equal(t, "1000000000000000000", result.Tokens[1].Balance.String())
	assert.Equal(t, "ERC-20", result.Tokens[1].Type)
}

func TestDecodeTransactionInfo(t *testing.T) {
	raw := rawJSON(t, `{"data": {"hash": "0xabc", "status": "ok", "block_number": 123,
		"gas_used": "21000", "gas_limit": 30000, "fee": {"type": "actual", "value": "42000"},
		"decoded_input": {"method_call": "buyStock(uint256 amount)", "parameters": [{"name": "amount", "type": "uint256", "value": "1000000000000"}]},
		"token_transfers": [{"from": "0x1", "to": "0x2", "token": {"symbol": "STK", "decimals": "18"}, "total": {"value": "5"}}]}}`)
	result, err := Decode(ToolTransactionInfo, raw)
	require.NoError(t, err)
	require.Equal(t, KindTransactionInfo, result.Kind)

	tx := result.Transaction
	assert.Equal(t, "123", tx.BlockNumber.String())
	assert.Equal(t, "30000", tx.GasLimit.String())
	assert.Equal(t, "42000", tx.Fee.String())
	require.NotNil(t, tx.DecodedInput)
	assert.Equal(t, "1000000000000", tx.DecodedInput.Parameters[0].Value.String())
	assert.Equal(t, "STK", tx.TokenTransfers[0].Token.Symbol)
	assert.Nil(t, tx.HasLogs)
}

func TestDecodeFallsBackToRaw(t *testing.T) {
	result, err := Decode(ToolAddressInfo, "plain text from the server")
	require.NoError(t, err)
	assert.Equal(t, KindRaw, result.Kind)

	result, err = Decode(ToolTransactions, []any{"unexpected"})
	assert.Error(t, err)
	assert.Equal(t, KindRaw, result.Kind)
	assert.NotNil(t, result.Raw)

	result, err = Decode("get_latest_block", map[string]any{"data": map[string]any{"block_number": 1}})
	require.NoError(t, err)
	assert.Equal(t, KindRaw, result.Kind)

	result, err = Decode(ToolTransactionInfo, map[string]any{"data": nil})
	require.NoError(t, err)
	assert.Equal(t, KindRaw, result.Kind)
}
