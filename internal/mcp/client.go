package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	xerrors "ChainScope-Agent/internal/errors"
	"ChainScope-Agent/pkg/logger"
)

// 支持的传输方式。
const (
	TransportStreamableHTTP = "streamable_http"
	TransportCommand        = "command"
)

// Implementation 是握手时上报给服务端的客户端信息。
var Implementation = &sdkmcp.Implementation{Name: "chainscope-agent", Version: "v0.1.0"}

// Config 描述如何连接 MCP 服务端。
type Config struct {
	Transport string
	Endpoint  string
	Command   string
	Args      []string
}

// Client 封装一个已初始化的 MCP 会话。
type Client struct {
	session *sdkmcp.ClientSession
	name    string
}

// Dial 按配置建立传输并完成 MCP 握手。
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, transport)
}

// Connect 在给定的传输上完成握手，测试中可以传入内存传输。
func Connect(ctx context.Context, transport sdkmcp.Transport) (*Client, error) {
	client := sdkmcp.NewClient(Implementation, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 MCP 服务端失败")
	}

	name := "mcp"
	if info := session.InitializeResult(); info != nil && info.ServerInfo != nil {
		name = info.ServerInfo.Name
		logger.Named("mcp").Info("MCP 会话已建立",
			slog.String("server", info.ServerInfo.Name),
			slog.String("version", info.ServerInfo.Version),
			slog.String("protocol", info.ProtocolVersion),
		)
	}
	return &Client{session: session, name: name}, nil
}

func buildTransport(cfg Config) (sdkmcp.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportStreamableHTTP:
		endpoint := strings.TrimSpace(cfg.Endpoint)
		if endpoint == "" {
			return nil, xerrors.New(xerrors.CodeConfigInvalid, "未配置 MCP 服务端地址")
		}
		return &sdkmcp.StreamableClientTransport{
			Endpoint:             endpoint,
			HTTPClient:           &http.Client{},
			DisableStandaloneSSE: true,
		}, nil
	case TransportCommand:
		command := strings.TrimSpace(cfg.Command)
		if command == "" {
			return nil, xerrors.New(xerrors.CodeConfigInvalid, "未配置 MCP 启动命令")
		}
		return &sdkmcp.CommandTransport{Command: exec.Command(command, cfg.Args...)}, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfigInvalid, fmt.Sprintf("不支持的 MCP 传输方式: %s", cfg.Transport))
	}
}

// Name 返回服务端上报的名称。
func (c *Client) Name() string { return c.name }

// ListTools 逐页拉取工具目录，直到服务端不再返回游标。
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	cursor := ""
	for {
		params := &sdkmcp.ListToolsParams{}
		if cursor != "" {
			params.Cursor = cursor
		}
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, "获取 MCP 工具列表失败")
		}
		for _, t := range res.Tools {
			if t == nil || strings.TrimSpace(t.Name) == "" {
				continue
			}
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaMap(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

// CallTool 调用工具并展开结果。
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	res, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolFailure, err, fmt.Sprintf("调用工具 %s 失败", name))
	}
	return UnwrapResult(res)
}

// Close 关闭会话。
func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	return c.session.Close()
}

// UnwrapResult 取第一个文本内容并尝试按 JSON 解析，失败时返回原始文本；
// 没有内容时退回结构化结果。isError 的结果转为工具错误。
func UnwrapResult(res *sdkmcp.CallToolResult) (any, error) {
	if res == nil {
		return nil, nil
	}
	text, hasText := firstText(res.Content)
	if res.IsError {
		if !hasText || strings.TrimSpace(text) == "" {
			text = "tool returned an error"
		}
		return nil, xerrors.New(xerrors.CodeToolFailure, text)
	}
	if hasText {
		return decodeText(text), nil
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	if len(res.Content) > 0 {
		return fmt.Sprintf("[%T]", res.Content[0]), nil
	}
	return nil, nil
}

func firstText(content []sdkmcp.Content) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	if text, ok := content[0].(*sdkmcp.TextContent); ok {
		return text.Text, true
	}
	return "", false
}

// decodeText 保留数字字面量，避免大整数 wei 丢失精度。
func decodeText(text string) any {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return text
	}
	return v
}

func schemaMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return s
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
