package analysis

import (
	"math/big"
	"sort"
	"time"

	"ChainScope-Agent/internal/blockscout"
	"ChainScope-Agent/internal/chain"
	"ChainScope-Agent/internal/units"
)

// topInteractions 是每条链保留的交互对象数量。
const topInteractions = 5

// ChainData 是单条链的交易聚合结果，只由 get_transactions_by_address 的记录生成。
type ChainData struct {
	ChainID      string
	Name         string
	TxCount      int
	GasWei       *big.Int
	Transactions blockscout.TransactionList
	MostRecent   time.Time
	Oldest       time.Time
	Types        []TypeCount
	Interactions []Interaction
}

// TypeCount 是某种交易类型出现的次数。
type TypeCount struct {
	Type  string
	Count int
}

// Interaction 汇总与某个 to 地址的交互次数，Type 取首次出现时的交易类型。
type Interaction struct {
	Address string
	Count   int
	Type    string
}

// GasEther 返回精确的 ETH 展示值。
func (d ChainData) GasEther() string {
	return units.FormatEther(d.GasWei)
}

// HasTimestamps 表示至少有一笔交易带有可解析的时间。
func (d ChainData) HasTimestamps() bool {
	return !d.MostRecent.IsZero()
}

// TypeCountOf 返回指定类型的次数。
func (d ChainData) TypeCountOf(kind string) int {
	for _, tc := range d.Types {
		if tc.Type == kind {
			return tc.Count
		}
	}
	return 0
}

// SortedTypes 按次数降序返回交易类型，次数相同时保持首次出现的顺序。
func (d ChainData) SortedTypes() []TypeCount {
	out := append([]TypeCount(nil), d.Types...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// TopType 返回出现最多的交易类型。
func (d ChainData) TopType() (TypeCount, bool) {
	sorted := d.SortedTypes()
	if len(sorted) == 0 {
		return TypeCount{}, false
	}
	return sorted[0], true
}

// BuildChainData 把每条 get_transactions_by_address 记录聚合为一个 ChainData，
// 顺序与记录顺序一致。
func BuildChainData(calls []ToolCall, catalog *chain.Catalog) []ChainData {
	var out []ChainData
	for _, call := range callsFor(calls, blockscout.ToolTransactions) {
		decoded := call.Decoded()
		if decoded.Kind != blockscout.KindTransactions {
			continue
		}
		id := call.ChainID()
		out = append(out, aggregate(id, catalog.Name(id), decoded.Transactions))
	}
	return out
}

func aggregate(id, name string, txs blockscout.TransactionList) ChainData {
	data := ChainData{
		ChainID:      id,
		Name:         name,
		TxCount:      len(txs),
		GasWei:       new(big.Int),
		Transactions: txs,
	}

	typeIndex := make(map[string]int)
	interactionIndex := make(map[string]int)
	var interactions []Interaction

	for _, tx := range txs {
		if tx.Fee.Valid() {
			data.GasWei.Add(data.GasWei, tx.Fee.Int())
		}

		kind := tx.Kind()
		if idx, ok := typeIndex[kind]; ok {
			data.Types[idx].Count++
		} else {
			typeIndex[kind] = len(data.Types)
			data.Types = append(data.Types, TypeCount{Type: kind, Count: 1})
		}

		if to := tx.To.Hash; to != "" {
			if idx, ok := interactionIndex[to]; ok {
				interactions[idx].Count++
			} else {
				interactionIndex[to] = len(interactions)
				interactions = append(interactions, Interaction{Address: to, Count: 1, Type: kind})
			}
		}

		if ts, ok := tx.Time(); ok {
			if data.MostRecent.IsZero() || ts.After(data.MostRecent) {
				data.MostRecent = ts
			}
			if data.Oldest.IsZero() || ts.Before(data.Oldest) {
				data.Oldest = ts
			}
		}
	}

	sort.SliceStable(interactions, func(i, j int) bool { return interactions[i].Count > interactions[j].Count })
	if len(interactions) > topInteractions {
		interactions = interactions[:topInteractions]
	}
	data.Interactions = interactions
	return data
}

// filterChains 只保留请求中提到的链；未提到任何链时原样返回。
func filterChains(data []ChainData, requested []chain.Chain) []ChainData {
	if len(requested) == 0 {
		return data
	}
	wanted := make(map[string]bool, len(requested))
	for _, ch := range requested {
		wanted[ch.ID] = true
	}
	var out []ChainData
	for _, d := range data {
		if wanted[d.ChainID] {
			out = append(out, d)
		}
	}
	return out
}

func activeChains(data []ChainData) []ChainData {
	var out []ChainData
	for _, d := range data {
		if d.TxCount > 0 {
			out = append(out, d)
		}
	}
	return out
}

func totalGas(data []ChainData) *big.Int {
	sum := new(big.Int)
	for _, d := range data {
		sum.Add(sum, d.GasWei)
	}
	return sum
}

func totalTxs(data []ChainData) int {
	sum := 0
	for _, d := range data {
		sum += d.TxCount
	}
	return sum
}

// mostActive 返回交易数最多的链，并列时取靠前者。
func mostActive(data []ChainData) (ChainData, bool) {
	best := -1
	for i, d := range data {
		if best < 0 || d.TxCount > data[best].TxCount {
			best = i
		}
	}
	if best < 0 {
		return ChainData{}, false
	}
	return data[best], true
}

// activityScore 计算 txCount*10 + gasEth*1000。
func activityScore(d ChainData) *big.Rat {
	score := new(big.Rat).SetInt64(int64(d.TxCount) * 10)
	gas := units.WeiToEtherRat(d.GasWei)
	gas.Mul(gas, big.NewRat(1000, 1))
	return score.Add(score, gas)
}

// rankByActivity 按活跃度得分降序排列，得分相同时保持输入顺序。
func rankByActivity(data []ChainData) []ChainData {
	out := append([]ChainData(nil), data...)
	scores := make(map[int]*big.Rat, len(out))
	order := make([]int, len(out))
	for i := range out {
		order[i] = i
		scores[i] = activityScore(out[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].Cmp(scores[order[b]]) > 0
	})
	ranked := make([]ChainData, len(out))
	for i, idx := range order {
		ranked[i] = out[idx]
	}
	return ranked
}
