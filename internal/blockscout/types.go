package blockscout

import (
	"bytes"
	"encoding/json"
	"time"
)

// Tool names served by the Blockscout MCP server that the analysis layer
// understands.
const (
	ToolAddressInfo        = "get_address_info"
	ToolTransactions       = "get_transactions_by_address"
	ToolTokens             = "get_tokens_by_address"
	ToolTransactionInfo    = "get_transaction_info"
	ToolUnlockAnalysis     = "__unlock_blockchain_analysis__"
	ToolTokenInfo          = "get_token_info"
	ToolLatestBlock        = "get_latest_block"
	ToolTokenTransfers     = "get_token_transfers_by_address"
	ToolContractABI        = "get_contract_abi"
	ToolAddressByENSName   = "get_address_by_ens_name"
	ToolTransactionSummary = "transaction_summary"
)

// Pagination is attached to list results that have more pages.
type Pagination struct {
	NextCall *NextCall `json:"next_call,omitempty"`
}

// NextCall describes the tool call that fetches the next page.
type NextCall struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

// BasicInfo is the address summary returned by get_address_info.
type BasicInfo struct {
	Hash                    string           `json:"hash"`
	Name                    string           `json:"name"`
	IsContract              bool             `json:"is_contract"`
	IsVerified              bool             `json:"is_verified"`
	IsScam                  bool             `json:"is_scam"`
	Reputation              string           `json:"reputation"`
	CoinBalance             Amount           `json:"coin_balance"`
	ProxyType               string           `json:"proxy_type"`
	Implementations         []Implementation `json:"implementations"`
	CreatorAddressHash      string           `json:"creator_address_hash"`
	CreationTransactionHash string           `json:"creation_transaction_hash"`
	HasLogs                 bool             `json:"has_logs"`
	HasTokenTransfers       bool             `json:"has_token_transfers"`
	HasTokens               bool             `json:"has_tokens"`
	ENSDomainName           string           `json:"ens_domain_name"`
}

// Implementation is a proxy implementation contract.
type Implementation struct {
	Name        string `json:"name"`
	AddressHash string `json:"address_hash"`
}

// AddressInfo is the typed payload of get_address_info.
type AddressInfo struct {
	BasicInfo   BasicInfo `json:"basic_info"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	PublicTags  []Tag     `json:"public_tags,omitempty"`
	PrivateTags []Tag     `json:"private_tags,omitempty"`
}

// Metadata carries the explorer's address tags.
type Metadata struct {
	Tags []Tag `json:"tags"`
}

// AllTags merges public, private and metadata tags.
func (a *AddressInfo) AllTags() []Tag {
	if a == nil {
		return nil
	}
	tags := append([]Tag{}, a.PublicTags...)
	tags = append(tags, a.PrivateTags...)
	if a.Metadata != nil {
		tags = append(tags, a.Metadata.Tags...)
	}
	return tags
}

// Transaction is one entry of get_transactions_by_address.
type Transaction struct {
	Hash        string  `json:"hash"`
	From        Address `json:"from"`
	To          Address `json:"to"`
	Value       Amount  `json:"value"`
	Fee         Amount  `json:"fee"`
	Method      string  `json:"method"`
	Type        Text    `json:"type"`
	Status      string  `json:"status"`
	BlockNumber Text    `json:"block_number"`
	Timestamp   string  `json:"timestamp"`
}

// Kind returns method, then type, then "transfer".
func (t Transaction) Kind() string {
	if t.Method != "" {
		return t.Method
	}
	if t.Type != "" {
		return t.Type.String()
	}
	return "transfer"
}

// Time parses the RFC 3339 timestamp.
func (t Transaction) Time() (time.Time, bool) {
	return parseTimestamp(t.Timestamp)
}

// TransactionList accepts either a bare array or an {"items": [...]} object.
type TransactionList []Transaction

// UnmarshalJSON implements both list encodings.
func (l *TransactionList) UnmarshalJSON(data []byte) error {
	items, err := decodeItems[Transaction](data)
	*l = items
	return err
}

// TokenHolding is one entry of get_tokens_by_address.
type TokenHolding struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals Text   `json:"decimals"`
	Balance  Text   `json:"balance"`
	Type     string `json:"type"`
}

// UnmarshalJSON also accepts the explorer's {"token": {...}, "value": "..."} form.
func (h *TokenHolding) UnmarshalJSON(data []byte) error {
	type flat TokenHolding
	var raw struct {
		flat
		AddressHash string `json:"address_hash"`
		Value       Text   `json:"value"`
		Token       *struct {
			AddressHash string `json:"address_hash"`
			Address     string `json:"address"`
			Name        string `json:"name"`
			Symbol      string `json:"symbol"`
			Decimals    Text   `json:"decimals"`
			Type        string `json:"type"`
		} `json:"token"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = TokenHolding(raw.flat)
	if h.Address == "" {
		h.Address = raw.AddressHash
	}
	if h.Balance == "" {
		h.Balance = raw.Value
	}
	if tok := raw.Token; tok != nil {
		h.Address = firstNonEmpty(h.Address, tok.AddressHash, tok.Address)
		h.Name = firstNonEmpty(h.Name, tok.Name)
		h.Symbol = firstNonEmpty(h.Symbol, tok.Symbol)
		h.Type = firstNonEmpty(h.Type, tok.Type)
		if h.Decimals == "" {
			h.Decimals = tok.Decimals
		}
	}
	return nil
}

// TokenList accepts either a bare array or an {"items": [...]} object.
type TokenList []TokenHolding

// UnmarshalJSON implements both list encodings.
func (l *TokenList) UnmarshalJSON(data []byte) error {
	items, err := decodeItems[TokenHolding](data)
	*l = items
	return err
}

// TransactionInfo is the payload of get_transaction_info.
type TransactionInfo struct {
	Hash             string          `json:"hash"`
	Status           string          `json:"status"`
	BlockNumber      Text            `json:"block_number"`
	From             Address         `json:"from"`
	To               Address         `json:"to"`
	Value            Amount          `json:"value"`
	GasUsed          Amount          `json:"gas_used"`
	GasLimit         Amount          `json:"gas_limit"`
	Fee              Amount          `json:"fee"`
	Timestamp        string          `json:"timestamp"`
	Method           string          `json:"method"`
	DecodedInput     *DecodedInput   `json:"decoded_input"`
	TokenTransfers   []TokenTransfer `json:"token_transfers"`
	TransactionTypes []string        `json:"transaction_types"`
	HasLogs          *bool           `json:"has_logs"`
}

// Time parses the RFC 3339 timestamp.
func (t TransactionInfo) Time() (time.Time, bool) {
	return parseTimestamp(t.Timestamp)
}

// DecodedInput is the ABI-decoded call data.
type DecodedInput struct {
	MethodCall string      `json:"method_call"`
	MethodID   string      `json:"method_id"`
	Parameters []Parameter `json:"parameters"`
}

// Parameter is one decoded argument.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value Text   `json:"value"`
}

// TokenTransfer is a token movement inside a transaction.
type TokenTransfer struct {
	From  Address  `json:"from"`
	To    Address  `json:"to"`
	Token TokenRef `json:"token"`
	Total struct {
		Value    Text `json:"value"`
		Decimals Text `json:"decimals"`
	} `json:"total"`
}

// TokenRef identifies the token of a transfer.
type TokenRef struct {
	AddressHash string `json:"address_hash"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    Text   `json:"decimals"`
}

func decodeItems[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return nil, nil
	}
	if data[0] == '{' {
		var wrapped struct {
			Items []T `json:"items"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Items, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
