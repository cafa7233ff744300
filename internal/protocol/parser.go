// Package protocol parses the plain-text instruction format the model is
// asked to reply in:
//
//	TOOL_CALL: get_transactions_by_address
//	ARGS: {"address": "0x...", "chain_id": "1"}
//	END_TOOL_CALL
//
// or
//
//	FINAL_ANSWER: <free text>
//
// Parsing is total: malformed input never produces an error, it simply does
// not yield a tool call.
package protocol

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Markers understood by the parser. Prompts must reproduce them verbatim.
const (
	ToolCallMarker    = "TOOL_CALL:"
	ArgsMarker        = "ARGS:"
	EndToolCallMarker = "END_TOOL_CALL"
	FinalAnswerMarker = "FINAL_ANSWER:"
)

// IncompleteAnswer replaces completions that carry no usable text.
const IncompleteAnswer = "Analysis in progress. The agent called tools but didn't provide a final answer. Please check toolCalls for the data retrieved."

const emptyContentSentinel = `"type":"text","text":""`

var (
	toolCallPattern    = regexp.MustCompile(`TOOL_CALL:\s*(\w+)\s*ARGS:\s*(\{[\s\S]*?\})\s*END_TOOL_CALL`)
	finalAnswerPattern = regexp.MustCompile(`FINAL_ANSWER:\s*([\s\S]*)`)
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Result holds exactly one of ToolCall or FinalAnswer.
type Result struct {
	ToolCall    *ToolCall
	FinalAnswer string
}

// IsToolCall reports whether the completion asked for a tool.
func (r Result) IsToolCall() bool { return r.ToolCall != nil }

// Parse classifies a completion. A well-formed tool call takes precedence
// over any FINAL_ANSWER text in the same completion.
func Parse(completion string) Result {
	if call, ok := ParseToolCall(completion); ok {
		return Result{ToolCall: call}
	}
	return Result{FinalAnswer: ExtractFinalAnswer(completion)}
}

// ParseToolCall extracts the first tool call whose ARGS decode to a JSON
// object. Arguments that are not valid JSON objects yield no tool call.
func ParseToolCall(completion string) (*ToolCall, bool) {
	match := toolCallPattern.FindStringSubmatch(completion)
	if match == nil {
		return nil, false
	}
	args, ok := decodeObject(match[2])
	if !ok {
		return nil, false
	}
	return &ToolCall{Name: match[1], Args: args}, true
}

func decodeObject(raw string) (map[string]any, bool) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var args map[string]any
	if err := decoder.Decode(&args); err != nil || args == nil {
		return nil, false
	}
	if decoder.More() {
		return nil, false
	}
	return args, true
}

// ExtractFinalAnswer returns the text after FINAL_ANSWER:, or the whole
// completion when the marker is absent. Degenerate completions are
// replaced by IncompleteAnswer.
func ExtractFinalAnswer(completion string) string {
	if match := finalAnswerPattern.FindStringSubmatch(completion); match != nil {
		if answer := strings.TrimSpace(match[1]); answer != "" {
			return answer
		}
		return strings.TrimSpace(completion)
	}
	if IsDegenerate(completion) {
		return IncompleteAnswer
	}
	return strings.TrimSpace(completion)
}

// IsEmpty reports whether a completion is empty, whitespace only or an empty
// JSON array. Unlike IsDegenerate it does not look for the empty text block,
// which a marked final answer may legitimately quote.
func IsEmpty(completion string) bool {
	trimmed := strings.TrimSpace(completion)
	return trimmed == "" || trimmed == "[]"
}

// IsDegenerate reports whether a completion carries no usable content:
// empty, whitespace only, an empty JSON array, or an empty MCP text block.
func IsDegenerate(completion string) bool {
	if IsEmpty(completion) {
		return true
	}
	trimmed := strings.TrimSpace(completion)
	compact := new(bytes.Buffer)
	if err := json.Compact(compact, []byte(trimmed)); err == nil {
		trimmed = compact.String()
	}
	return strings.Contains(trimmed, emptyContentSentinel)
}
