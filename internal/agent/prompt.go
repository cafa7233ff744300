package agent

import (
	"fmt"
	"strings"

	"ChainScope-Agent/internal/mcp"
	"ChainScope-Agent/internal/protocol"
)

const forceAnswerInstruction = "\n\nIMPORTANT: You have made enough tool calls. You MUST provide your " +
	protocol.FinalAnswerMarker + " now based on the data collected. Do NOT call more tools."

// systemPrompt 描述可用的链与工具，以及模型必须遵守的回复格式。
// 内部工具在这里被隐藏，调用前还会再做一次校验。
func (a *Agent) systemPrompt(chainID string, tools []mcp.Tool) string {
	var b strings.Builder

	b.WriteString("You are an intelligent blockchain analysis agent with access to blockchain data through MCP tools.\n\n")
	if chainID != "" {
		fmt.Fprintf(&b, "The user specified chain_id: %s. Use this chain ONLY unless they explicitly ask about other chains.\n\n", chainID)
	} else {
		fmt.Fprintf(&b, "No specific chain was specified. DEFAULT TO chain_id: %q (%s). Only check other chains if the user explicitly asks for \"all chains\" or \"multiple chains\".\n\n",
			a.defaultChain, a.catalog.Name(a.defaultChain))
	}

	b.WriteString("AVAILABLE CHAINS:\n")
	for _, ch := range a.catalog.All() {
		fmt.Fprintf(&b, "- %s: %s", ch.ID, ch.Name)
		if ch.ID == a.defaultChain {
			b.WriteString(" (DEFAULT if not specified)")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nAVAILABLE TOOLS:\n")
	for _, tool := range tools {
		if !tool.Public() {
			continue
		}
		description := strings.TrimSpace(tool.Description)
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, description)
	}

	fmt.Fprintf(&b, `
TOOL CALLING FORMAT:
%[1]s tool_name
%[2]s {"param1": "value1", "param2": "value2"}
%[3]s

After receiving tool results, you MUST either:
1. Call another tool if you need more information, OR
2. Provide "%[4]s " with your analysis

RULES:
1. Chain selection: use the chain above; check other chains only when the user asks for all or multiple chains.
2. Pagination: if a response includes "pagination", mention it but do not fetch more pages unless asked.
3. Calculations: compute totals, averages, min and max from the data you received.
4. If fewer items exist than requested, say how many were available.
5. Contract safety: check is_verified, is_scam and reputation, look at transaction patterns, then assess the risk.
6. Never reply with an empty message. Once you have enough data, answer with %[4]s.

EXAMPLE:
User: "What's the last transaction for 0x49f51e3C94B459677c3B1e611DB3E44d4E6b1D55?"
Assistant:
%[1]s get_transactions_by_address
%[2]s {"address": "0x49f51e3C94B459677c3B1e611DB3E44d4E6b1D55", "chain_id": "%[5]s", "page_size": 1, "order": "desc"}
%[3]s

[After receiving results]
%[4]s The last transaction for this address was ...`,
		protocol.ToolCallMarker, protocol.ArgsMarker, protocol.EndToolCallMarker, protocol.FinalAnswerMarker, a.defaultChain)

	return b.String()
}
