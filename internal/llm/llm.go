package llm

import "context"

// Role 是消息的发送方。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request 描述一次补全调用：系统提示词加上按时间排序的消息窗口。
type Request struct {
	System          string
	Messages        []Message
	Temperature     float32
	MaxOutputTokens int32
}

// Response 是大模型返回的原始文本，协议解析由调用方完成。
type Response struct {
	Text  string
	Model string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 让普通函数满足 Client 接口。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 调用函数本身。
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
