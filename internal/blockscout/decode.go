package blockscout

import (
	"encoding/json"
	"fmt"
)

// Kind tags which variant of Result is populated.
type Kind int

const (
	KindRaw Kind = iota
	KindAddressInfo
	KindTransactions
	KindTokens
	KindTransactionInfo
)

// Result is a tool result decoded at the boundary. Exactly one of the typed
// fields is set for known tools; Raw always keeps the original value so it
// can be forwarded to the model unchanged.
type Result struct {
	Kind         Kind
	AddressInfo  *AddressInfo
	Transactions TransactionList
	Tokens       TokenList
	Transaction  *TransactionInfo
	Pagination   *Pagination
	Raw          any
}

// HasNextPage reports whether the server offered another page.
func (r Result) HasNextPage() bool {
	return r.Pagination != nil && r.Pagination.NextCall != nil
}

type envelope[T any] struct {
	Data       T           `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

// Decode converts the unwrapped result of a tool call into its typed form.
// Unknown tools and non-object payloads are returned as KindRaw. A decode
// error still returns a usable KindRaw result.
func Decode(tool string, raw any) (Result, error) {
	result := Result{Kind: KindRaw, Raw: raw}
	if raw == nil {
		return result, nil
	}
	if _, isText := raw.(string); isText {
		return result, nil
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		return result, fmt.Errorf("encode %s result: %w", tool, err)
	}

	switch tool {
	case ToolAddressInfo:
		var env envelope[AddressInfo]
		if err := json.Unmarshal(payload, &env); err != nil {
			return result, fmt.Errorf("decode %s result: %w", tool, err)
		}
		result.Kind, result.AddressInfo, result.Pagination = KindAddressInfo, &env.Data, env.Pagination
	case ToolTransactions:
		var env envelope[TransactionList]
		if err := json.Unmarshal(payload, &env); err != nil {
			return result, fmt.Errorf("decode %s result: %w", tool, err)
		}
		result.Kind, result.Transactions, result.Pagination = KindTransactions, env.Data, env.Pagination
	case ToolTokens:
		var env envelope[TokenList]
		if err := json.Unmarshal(payload, &env); err != nil {
			return result, fmt.Errorf("decode %s result: %w", tool, err)
		}
		result.Kind, result.Tokens, result.Pagination = KindTokens, env.Data, env.Pagination
	case ToolTransactionInfo:
		var env envelope[*TransactionInfo]
		if err := json.Unmarshal(payload, &env); err != nil {
			return result, fmt.Errorf("decode %s result: %w", tool, err)
		}
		if env.Data == nil {
			return result, nil
		}
		result.Kind, result.Transaction, result.Pagination = KindTransactionInfo, env.Data, env.Pagination
	default:
		var env struct {
			Pagination *Pagination `json:"pagination"`
		}
		if json.Unmarshal(payload, &env) == nil {
			result.Pagination = env.Pagination
		}
	}
	return result, nil
}
