package assistant

import "context"

// 对话角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn 上下文中的一轮对话
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 一次助手调用
// Mode为"concise"时返回Reply，为"augmented"时返回Hits
type Request struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
	Mode    string `json:"mode"`
}

// SearchHit 检索增强模式下的单条结果
type SearchHit struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Response 助手的结构化响应
// Reply与Hits二选一
type Response struct {
	Reply string      `json:"reply,omitempty"`
	Hits  []SearchHit `json:"data,omitempty"`
}

// Client 外部助手服务的调用入口
// 调用方只关心请求/响应形状，不关心背后的模型服务
type Client interface {
	Ask(ctx context.Context, req Request) (*Response, error)
}
