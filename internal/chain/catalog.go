package chain

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Chain 描述一条受支持的网络。
type Chain struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Aliases     []string `yaml:"aliases"`
	RPCURL      string   `yaml:"rpc_url"`
	Description string   `yaml:"description"`
}

// Definitions 对应 chains.yaml 的结构。
type Definitions struct {
	Chains []Chain `yaml:"chains"`
}

// Catalog 是有序的链目录，顺序即扇出查询与报告的默认顺序。
type Catalog struct {
	chains  []Chain
	byID    map[string]int
	aliases []alias
}

type alias struct {
	text  string
	index int
}

// DefaultChains 返回内置的五条网络。
func DefaultChains() []Chain {
	return []Chain{
		{ID: "1", Name: "Ethereum Mainnet", Aliases: []string{"ethereum", "mainnet"}},
		{ID: "11155111", Name: "Sepolia Testnet", Aliases: []string{"sepolia"}},
		{ID: "84532", Name: "Base Sepolia", Aliases: []string{"base sepolia", "base"}},
		{ID: "10", Name: "Optimism", Aliases: []string{"optimism"}},
		{ID: "42161", Name: "Arbitrum One", Aliases: []string{"arbitrum one", "arbitrum"}},
	}
}

// Default 使用内置网络构建目录。
func Default() *Catalog {
	catalog, _ := NewCatalog(DefaultChains())
	return catalog
}

// NewCatalog 校验并索引链定义，ID 不能为空也不能重复。
func NewCatalog(chains []Chain) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(chains))}
	for _, ch := range chains {
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			return nil, fmt.Errorf("链定义缺少 id")
		}
		if _, dup := c.byID[ch.ID]; dup {
			return nil, fmt.Errorf("链 %s 重复定义", ch.ID)
		}
		if ch.Name == "" {
			ch.Name = fallbackName(ch.ID)
		}
		c.byID[ch.ID] = len(c.chains)
		for _, a := range ch.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				c.aliases = append(c.aliases, alias{text: a, index: len(c.chains)})
			}
		}
		c.chains = append(c.chains, ch)
	}
	sort.SliceStable(c.aliases, func(i, j int) bool {
		return len(c.aliases[i].text) > len(c.aliases[j].text)
	})
	return c, nil
}

// Load 解析链目录文件，路径为空时返回内置目录。
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取链配置失败: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("解析链配置失败: %w", err)
	}
	if len(defs.Chains) == 0 {
		return nil, fmt.Errorf("链配置 %s 为空", path)
	}
	return NewCatalog(defs.Chains)
}

// All 返回目录中所有链的副本。
func (c *Catalog) All() []Chain {
	out := make([]Chain, len(c.chains))
	copy(out, c.chains)
	return out
}

// IDs 按目录顺序返回链 ID。
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.chains))
	for i, ch := range c.chains {
		ids[i] = ch.ID
	}
	return ids
}

// Len 返回目录大小。
func (c *Catalog) Len() int { return len(c.chains) }

// Lookup 按 ID 查找链。
func (c *Catalog) Lookup(id string) (Chain, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return Chain{}, false
	}
	return c.chains[idx], true
}

// Name 返回链的展示名称，未知 ID 显示为 "Chain <id>"。
func (c *Catalog) Name(id string) string {
	if ch, ok := c.Lookup(id); ok {
		return ch.Name
	}
	return fallbackName(id)
}

func fallbackName(id string) string {
	return "Chain " + id
}

// Mentioned 返回消息中提到的链，按目录顺序去重。
// 匹配按别名长度从长到短进行，已被较长别名占用的文本不会再次参与匹配，
// 因此 "base sepolia" 只会命中 Base Sepolia。
func (c *Catalog) Mentioned(message string) []Chain {
	text := strings.ToLower(message)
	used := make([]bool, len(text))
	hit := make([]bool, len(c.chains))

	for _, a := range c.aliases {
		from := 0
		for {
			pos := strings.Index(text[from:], a.text)
			if pos < 0 {
				break
			}
			start := from + pos
			end := start + len(a.text)
			from = start + 1
			if !wordBoundary(text, start, end) || overlaps(used, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				used[i] = true
			}
			hit[a.index] = true
		}
	}

	var out []Chain
	for i, ok := range hit {
		if ok {
			out = append(out, c.chains[i])
		}
	}
	return out
}

func wordBoundary(text string, start, end int) bool {
	if start > 0 && isWordByte(text[start-1]) {
		return false
	}
	if end < len(text) && isWordByte(text[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b < unicode.MaxASCII && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}

func overlaps(used []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if used[i] {
			return true
		}
	}
	return false
}
