package chain

import (
	"os"
	"path/filepath"
	"testing"
)

func mentionedIDs(c *Catalog, message string) []string {
	var ids []string
	for _, ch := range c.Mentioned(message) {
		ids = append(ids, ch.ID)
	}
	return ids
}

func TestMentionedLongestAliasWins(t *testing.T) {
	catalog := Default()
	cases := map[string][]string{
		"base sepolia testnet":                  {"84532"},
		"activity on Sepolia":                   {"11155111"},
		"show my base balance":                  {"84532"},
		"Compare Ethereum vs Optimism activity": {"1", "10"},
		"sepolia and base sepolia":              {"11155111", "84532"},
		"check the database":                    nil,
		"arbitrum one gas":                      {"42161"},
	}
	for message, want := range cases {
		got := mentionedIDs(catalog, message)
		if len(got) != len(want) {
			t.Fatalf("Mentioned(%q) = %v, want %v", message, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Mentioned(%q) = %v, want %v", message, got, want)
			}
		}
	}
}

func TestNameFallsBackForUnknownChain(t *testing.T) {
	catalog := Default()
	if got := catalog.Name("10"); got != "Optimism" {
		t.Fatalf("unexpected name: %s", got)
	}
	if got := catalog.Name("137"); got != "Chain 137" {
		t.Fatalf("unexpected fallback: %s", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := `chains:
  - id: "1"
    name: Ethereum Mainnet
    aliases: [ethereum]
    rpc_url: http://localhost:8545
  - id: "137"
    aliases: [polygon]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("unexpected size: %d", catalog.Len())
	}
	ch, ok := catalog.Lookup("1")
	if !ok || ch.RPCURL != "http://localhost:8545" {
		t.Fatalf("unexpected chain: %+v", ch)
	}
	if catalog.Name("137") != "Chain 137" {
		t.Fatalf("missing names should fall back")
	}
	if ids := mentionedIDs(catalog, "polygon activity"); len(ids) != 1 || ids[0] != "137" {
		t.Fatalf("unexpected mention: %v", ids)
	}
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	if _, err := NewCatalog([]Chain{{ID: "1"}, {ID: "1"}}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewCatalog([]Chain{{ID: " "}}); err == nil {
		t.Fatalf("expected empty id error")
	}
}
