package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	completion := `I'll look that up.
TOOL_CALL:   get_transactions_by_address
ARGS: {"address": "0x49f51e3C94B459677c3B1e611DB3E44d4E6b1D55", "chain_id": "1", "page_size": 1, "order": "desc", "filter": {"kind": "all"}}
END_TOOL_CALL`

	result := Parse(completion)
	require.True(t, result.IsToolCall())
	assert.Empty(t, result.FinalAnswer)
	assert.Equal(t, "get_transactions_by_address", result.ToolCall.Name)
	assert.Equal(t, "1", result.ToolCall.Args["chain_id"])
	assert.Equal(t, json.Number("1"), result.ToolCall.Args["page_size"])
	assert.Equal(t, map[string]any{"kind": "all"}, result.ToolCall.Args["filter"])
}

func TestToolCallTakesPrecedence(t *testing.T) {
	completion := "FINAL_ANSWER: done\nTOOL_CALL: get_address_info ARGS: {\"address\": \"0x1\"} END_TOOL_CALL"
	result := Parse(completion)
	require.True(t, result.IsToolCall())
	assert.Equal(t, "get_address_info", result.ToolCall.Name)
	assert.Empty(t, result.FinalAnswer)
}

func TestMalformedArgsFallThroughToAnswer(t *testing.T) {
	completion := "TOOL_CALL: get_address_info\nARGS: {address: 0x1}\nEND_TOOL_CALL"
	result := Parse(completion)
	assert.False(t, result.IsToolCall())
	assert.Equal(t, completion, result.FinalAnswer)

	_, ok := ParseToolCall("TOOL_CALL: x ARGS: {\"a\":1}")
	assert.False(t, ok, "missing end marker")
}

func TestExtractFinalAnswer(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"marker", "thinking...\nFINAL_ANSWER:   The balance is 1 ETH.  \n", "The balance is 1 ETH."},
		{"multiline", "FINAL_ANSWER: line one\nline two", "line one\nline two"},
		{"empty capture", "prefix FINAL_ANSWER:   ", "prefix FINAL_ANSWER:"},
		{"no marker", "  plain answer ", "plain answer"},
		{"empty", "", IncompleteAnswer},
		{"whitespace", " \n\t ", IncompleteAnswer},
		{"empty array", " [] ", IncompleteAnswer},
		{"empty text block", `[{"type":"text","text":""}]`, IncompleteAnswer},
		{"spaced text block", `[{"type": "text", "text": ""}]`, IncompleteAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractFinalAnswer(tc.in))
		})
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"TOOL_CALL:",
		"TOOL_CALL: a ARGS: END_TOOL_CALL",
		"TOOL_CALL: a ARGS: {} END_TOOL_CALL",
		"TOOL_CALL: a ARGS: {\"x\": [1,2} END_TOOL_CALL",
		"TOOL_CALL: a ARGS: {} {} END_TOOL_CALL",
		"FINAL_ANSWER:",
		"\x00\xff",
		"TOOL_CALL: ünïcode ARGS: {} END_TOOL_CALL",
	}
	for _, in := range inputs {
		result := Parse(in)
		if result.IsToolCall() {
			assert.Empty(t, result.FinalAnswer, in)
		} else {
			assert.NotEmpty(t, result.FinalAnswer, in)
		}
	}

	empty := Parse("TOOL_CALL: a ARGS: {} END_TOOL_CALL")
	require.True(t, empty.IsToolCall())
	assert.Empty(t, empty.ToolCall.Args)
}

func TestIsEmptyIgnoresTextBlockSentinel(t *testing.T) {
	assert.True(t, IsEmpty(" \n "))
	assert.True(t, IsEmpty("[]"))
	assert.False(t, IsEmpty(`[{"type":"text","text":""}]`))
	assert.True(t, IsDegenerate(`[{"type":"text","text":""}]`))

	quoted := `FINAL_ANSWER: chain 10 returned {"type":"text","text":""} only.`
	assert.False(t, IsEmpty(quoted))
	assert.Equal(t, `chain 10 returned {"type":"text","text":""} only.`, Parse(quoted).FinalAnswer)
}
