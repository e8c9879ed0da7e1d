package service

import (
	"context"
	"fmt"
	"strings"

	"chat-room/config"
	"chat-room/internal/event"
	"chat-room/internal/model"
	"chat-room/internal/repository"
	"chat-room/pkg/assistant"
	"chat-room/pkg/logger"
	"chat-room/pkg/redis"
	"chat-room/pkg/websocket"

	"go.uber.org/zap"
)

// 命令路由状态（记日志用）
const (
	botStateDetected   = "DETECTED"
	botStateDispatched = "DISPATCHED"
	botStateReplied    = "REPLIED"
	botStateErrored    = "ERRORED"
)

// 命令前缀，大小写不敏感
// searchPrefix强制检索增强模式，其余使用发送者的偏好
var (
	commandPrefixes = []string{"@bot ", "/bot "}
	searchPrefix    = "/search "
)

// BotService 机器人命令路由
// 检测命令前缀的消息，剥离前缀后转发给外部助手，
// 把助手回复作为保留身份的新消息写回同一消息流
type BotService struct {
	client       assistant.Client
	messageRepo  *repository.MessageRepository
	roomCfg      config.RoomConfig
	historySize  int
	assistantCfg config.AssistantConfig
}

// NewBotService 创建BotService实例
func NewBotService(client assistant.Client, messageRepo *repository.MessageRepository, roomCfg config.RoomConfig, assistantCfg config.AssistantConfig) *BotService {
	historySize := assistantCfg.HistorySize
	if historySize <= 0 {
		historySize = 10
	}
	return &BotService{
		client:       client,
		messageRepo:  messageRepo,
		roomCfg:      roomCfg,
		historySize:  historySize,
		assistantCfg: assistantCfg,
	}
}

// IsCommand 判断消息体是否为机器人命令
func IsCommand(body string) bool {
	_, _, ok := detectCommand(body)
	return ok
}

// detectCommand 检测命令前缀并剥离
// 返回剥离后的查询内容、是否强制检索模式
func detectCommand(body string) (query string, forceSearch bool, ok bool) {
	lower := strings.ToLower(body)

	if strings.HasPrefix(lower, searchPrefix) {
		return strings.TrimSpace(body[len(searchPrefix):]), true, true
	}
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(body[len(prefix):]), false, true
		}
	}
	return "", false, false
}

// MaybeHandle 检测并异步处理机器人命令，返回是否命中
// 用户消息此刻已经落库，助手路径的失败不会影响它
func (s *BotService) MaybeHandle(message *model.Message) bool {
	query, forceSearch, ok := detectCommand(message.Body)
	if !ok || query == "" {
		return false
	}

	logger.Info("检测到机器人命令",
		zap.String("state", botStateDetected),
		zap.Uint("trigger_id", message.ID),
		zap.Bool("force_search", forceSearch),
	)

	go s.dispatch(message, query, forceSearch)
	return true
}

// dispatch 调用助手并写回回复
// 任何失败都写回一条可见的错误消息：对话流是唯一的反馈面
func (s *BotService) dispatch(trigger *model.Message, query string, forceSearch bool) {
	mode := model.ModeAugmented
	if !forceSearch {
		mode = redis.GetBotMode(trigger.SenderIdentity)
	}

	req := assistant.Request{
		Message: query,
		History: s.buildHistory(),
		Mode:    mode,
	}

	logger.Info("机器人命令已派发",
		zap.String("state", botStateDispatched),
		zap.Uint("trigger_id", trigger.ID),
		zap.String("mode", mode),
	)

	ctx, cancel := context.WithTimeout(context.Background(), s.assistantCfg.Timeout)
	defer cancel()

	resp, err := s.client.Ask(ctx, req)
	if err != nil {
		logger.Error("助手调用失败",
			zap.String("state", botStateErrored),
			zap.Uint("trigger_id", trigger.ID),
			zap.Error(err),
		)
		s.postReply("抱歉，助手暂时无法回复，请稍后再试。", mode)
		return
	}

	body := renderReply(resp)
	if body == "" {
		logger.Error("助手返回空响应",
			zap.String("state", botStateErrored),
			zap.Uint("trigger_id", trigger.ID),
		)
		s.postReply("抱歉，助手没有给出有效回复。", mode)
		return
	}

	logger.Info("助手回复完成",
		zap.String("state", botStateReplied),
		zap.Uint("trigger_id", trigger.ID),
		zap.String("mode", mode),
	)
	s.postReply(body, mode)
}

// renderReply 将助手响应渲染为消息体
// 列表结果渲染为带序号的markdown清单，普通回复原样返回
func renderReply(resp *assistant.Response) string {
	if len(resp.Hits) > 0 {
		lines := make([]string, 0, len(resp.Hits))
		for i, hit := range resp.Hits {
			lines = append(lines, fmt.Sprintf("**%d.** [%s](%s)", i+1, hit.Title, hit.URL))
		}
		return strings.Join(lines, "\n")
	}
	return strings.TrimSpace(resp.Reply)
}

// postReply 以保留的助手身份写回一条新消息并广播
func (s *BotService) postReply(body, mode string) {
	message := &model.Message{
		Body:           body,
		SenderIdentity: model.AssistantIdentity,
		Mode:           mode,
	}

	if err := s.messageRepo.Create(message); err != nil {
		// 写库失败已无处可见，只能记日志
		logger.Error("助手回复写入失败", zap.Error(err))
		return
	}

	if err := redis.InvalidateHistory(s.roomCfg.Name); err != nil {
		logger.Warn("历史缓存失效失败", zap.Error(err))
	}
	websocket.GetManager().BroadcastEnvelope(event.NewChange(event.KindInsert, message))
}

// buildHistory 组装有界的上下文窗口
// 取最近的非命令、未删除消息，角色按是否为助手身份区分
func (s *BotService) buildHistory() []assistant.Turn {
	messages, err := s.messageRepo.ListRecent(s.roomCfg.HistoryLimit)
	if err != nil {
		logger.Warn("读取上下文历史失败", zap.Error(err))
		return nil
	}

	var turns []assistant.Turn
	for _, m := range messages {
		if m.IsDeleted || IsCommand(m.Body) {
			continue
		}
		role := assistant.RoleUser
		if m.IsAssistant() {
			role = assistant.RoleAssistant
		}
		turns = append(turns, assistant.Turn{Role: role, Content: m.Body})
	}

	// 只保留最后historySize条
	if len(turns) > s.historySize {
		turns = turns[len(turns)-s.historySize:]
	}

	return turns
}
