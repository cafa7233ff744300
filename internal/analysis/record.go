package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"ChainScope-Agent/internal/blockscout"
)

// ToolCall 记录一次已执行的工具调用，同时服务于模型上下文与确定性报告。
type ToolCall struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`

	decoded blockscout.Result
}

// NewToolCall 构造调用记录，并在边界处把结果解析为强类型。
// 解析失败时返回的记录仍然可用，只是没有强类型视图。
func NewToolCall(tool string, args map[string]any, result any, callErr error) (ToolCall, error) {
	call := ToolCall{Tool: tool, Args: args, Result: result}
	if callErr != nil {
		call.Error = callErr.Error()
		call.decoded = blockscout.Result{Kind: blockscout.KindRaw}
		return call, nil
	}
	decoded, err := blockscout.Decode(tool, result)
	call.decoded = decoded
	return call, err
}

// Failed 表示调用以错误结束。
func (c ToolCall) Failed() bool { return c.Error != "" }

// Decoded 返回结果的强类型视图。
func (c ToolCall) Decoded() blockscout.Result { return c.decoded }

// ChainID 读取参数中的 chain_id，兼容字符串与数字，缺失时为 "unknown"。
func (c ToolCall) ChainID() string {
	if id := ArgString(c.Args, "chain_id"); id != "" {
		return id
	}
	return "unknown"
}

// ArgString 将参数值规范为字符串，缺失时返回空串。
func ArgString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprint(val)
	}
}

// HasArg 判断参数是否存在且非空。
func HasArg(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func callsFor(calls []ToolCall, tool string) []ToolCall {
	var out []ToolCall
	for _, c := range calls {
		if c.Tool == tool && !c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

func firstCall(calls []ToolCall, tool string) (ToolCall, bool) {
	for _, c := range calls {
		if c.Tool == tool && !c.Failed() {
			return c, true
		}
	}
	return ToolCall{}, false
}
