package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chat-room/config"
	"chat-room/internal/model"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openaiClient 基于OpenAI兼容接口的助手实现
type openaiClient struct {
	openai openai.Client
	model  string
}

// searchResults 检索增强模式的结构化输出形状
type searchResults struct {
	Data []SearchHit `json:"data"`
}

const systemPrompt = "你是聊天室里的助手，回答要简短友好。"

const searchPrompt = "你是聊天室里的检索助手。" +
	"针对用户的查询返回最相关的条目列表，每条包含标题和链接。"

// NewOpenAI 创建OpenAI助手客户端
func NewOpenAI(cfg config.AssistantConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("assistant API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	m := cfg.Model
	if m == "" {
		m = "gpt-4o-mini"
	}

	return &openaiClient{
		openai: openai.NewClient(opts...),
		model:  m,
	}, nil
}

// Ask 调用助手
func (c *openaiClient) Ask(ctx context.Context, req Request) (*Response, error) {
	if req.Mode == model.ModeAugmented {
		return c.askAugmented(ctx, req)
	}
	return c.askConcise(ctx, req)
}

// askConcise 简洁对话模式：携带上下文的普通补全
func (c *openaiClient) askConcise(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}
	for _, turn := range req.History {
		if turn.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	return &Response{Reply: resp.Choices[0].Message.Content}, nil
}

// askAugmented 检索增强模式：JSON Schema约束的结构化输出
func (c *openaiClient) askAugmented(ctx context.Context, req Request) (*Response, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "search_results",
		Description: openai.String("Search hit list"),
		Schema:      generateSchema[searchResults](),
		Strict:      openai.Bool(true),
	}

	resp, err := c.openai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(searchPrompt),
			openai.UserMessage(req.Message),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai search: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	var results searchResults
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &results); err != nil {
		return nil, fmt.Errorf("unmarshal search results: %w", err)
	}

	return &Response{Hits: results.Data}, nil
}

// generateSchema 从Go类型生成JSON Schema
func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
