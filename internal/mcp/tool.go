package mcp

import (
	"context"
	"strings"
)

// Tool 是目录中的一个工具。
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Public 表示工具可以出现在提示词与 /tools 列表中。
func (t Tool) Public() bool { return !IsInternal(t.Name) }

// IsInternal 判断工具是否为内部工具：以 "__" 开头或名称包含 "unlock"。
func IsInternal(name string) bool {
	return strings.HasPrefix(name, "__") || strings.Contains(strings.ToLower(name), "unlock")
}

// Source 是可以列出并调用工具的提供方。
type Source interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}
