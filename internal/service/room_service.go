package service

import (
	"errors"
	"strings"
	"sync"

	"chat-room/config"
	"chat-room/internal/event"
	"chat-room/internal/model"
	"chat-room/internal/repository"
	"chat-room/pkg/logger"
	"chat-room/pkg/redis"
	"chat-room/pkg/websocket"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 服务层错误
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidIdentity = errors.New("invalid sender identity")
	ErrInvalidMode     = errors.New("invalid assistant mode")
	ErrStaleReference  = errors.New("replied-to message unavailable")
)

// RoomService 房间消息服务
// 所有变更走同一条路径：持久化写入 -> 失效历史缓存 -> 向全房间广播行变更事件
// 广播包含变更发起者自己，客户端靠回声完成乐观条目的对账
type RoomService struct {
	messageRepo *repository.MessageRepository
	roomCfg     config.RoomConfig
	bot         *BotService

	// 服务端按身份限流，与客户端本地冷却相互独立
	limiters    map[string]*rate.Limiter
	limiterLock sync.Mutex
}

// NewRoomService 创建RoomService实例
// bot可以为nil（助手未配置时房间照常工作）
func NewRoomService(messageRepo *repository.MessageRepository, roomCfg config.RoomConfig, bot *BotService) *RoomService {
	return &RoomService{
		messageRepo: messageRepo,
		roomCfg:     roomCfg,
		bot:         bot,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// SendMessage 发送消息
// 写入成功即广播INSERT事件；命中机器人命令前缀时异步触发助手，
// 助手路径的任何失败都不影响已提交的用户消息
func (s *RoomService) SendMessage(identity, body string, repliedTo *uint) (*model.Message, error) {
	identity = strings.TrimSpace(identity)
	body = strings.TrimSpace(body)

	if identity == "" || identity == model.AssistantIdentity {
		return nil, ErrInvalidIdentity
	}
	if body == "" {
		return nil, errors.New("message body is required")
	}

	if !s.allowSend(identity) {
		return nil, ErrRateLimited
	}

	// 回复引用只要求消息存在过（软删除的也算，渲染时降级为占位符）
	if repliedTo != nil {
		if _, err := s.messageRepo.GetByID(*repliedTo); err != nil {
			return nil, ErrStaleReference
		}
	}

	message := &model.Message{
		Body:           body,
		SenderIdentity: identity,
		RepliedTo:      repliedTo,
	}

	if err := s.messageRepo.Create(message); err != nil {
		return nil, err
	}

	s.publishChange(event.KindInsert, message)

	// 机器人命令检测在用户消息落库之后，两步解耦
	if s.bot != nil {
		s.bot.MaybeHandle(message)
	}

	return message, nil
}

// EditMessage 编辑消息（仅限发送者本人）
func (s *RoomService) EditMessage(id uint, identity, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("message body is required")
	}

	message, err := s.messageRepo.Edit(id, identity, body)
	if err != nil {
		return nil, err
	}

	s.publishChange(event.KindUpdate, message)
	return message, nil
}

// TogglePin 切换置顶状态（处理器已保证只有认证用户到达这里）
func (s *RoomService) TogglePin(id uint) (*model.Message, error) {
	current, err := s.messageRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	message, err := s.messageRepo.SetPinned(id, !current.IsPinned)
	if err != nil {
		return nil, err
	}

	s.publishChange(event.KindUpdate, message)
	return message, nil
}

// DeleteMessage 软删除消息（仅限发送者本人）
func (s *RoomService) DeleteMessage(id uint, identity string) error {
	message, err := s.messageRepo.SoftDelete(id, identity)
	if err != nil {
		return err
	}

	s.publishChange(event.KindDelete, message)
	return nil
}

// ToggleReaction 切换表情反应（任何身份都可以，包括游客）
func (s *RoomService) ToggleReaction(id uint, symbol, identity string) (*model.Message, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrInvalidIdentity
	}
	if symbol == "" {
		return nil, errors.New("reaction symbol is required")
	}

	message, err := s.messageRepo.ToggleReaction(id, symbol, identity)
	if err != nil {
		return nil, err
	}

	s.publishChange(event.KindUpdate, message)
	return message, nil
}

// History 获取房间最近消息（初始批量加载），按created_at升序
// 优先读缓存，未命中则回源数据库并填充
func (s *RoomService) History(limit int) ([]*model.Message, error) {
	if limit <= 0 || limit > s.roomCfg.HistoryLimit {
		limit = s.roomCfg.HistoryLimit
	}

	if cached, err := redis.GetCachedHistory(s.roomCfg.Name); err == nil && len(cached) > 0 {
		if len(cached) > limit {
			cached = cached[len(cached)-limit:]
		}
		return cached, nil
	}

	messages, err := s.messageRepo.ListRecent(limit)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = redis.CacheHistory(s.roomCfg.Name, messages)
	}()

	return messages, nil
}

// SetAssistantMode 保存身份的助手回复模式偏好
func (s *RoomService) SetAssistantMode(identity, mode string) error {
	if identity == "" {
		return ErrInvalidIdentity
	}
	if mode != model.ModeConcise && mode != model.ModeAugmented {
		return ErrInvalidMode
	}
	return redis.SetBotMode(identity, mode)
}

// publishChange 失效缓存并广播行变更
func (s *RoomService) publishChange(kind string, message *model.Message) {
	if err := redis.InvalidateHistory(s.roomCfg.Name); err != nil {
		logger.Warn("历史缓存失效失败", zap.Error(err))
	}

	websocket.GetManager().BroadcastEnvelope(event.NewChange(kind, message))
}

// allowSend 服务端按身份限流
// 固定窗口：冷却期内最多一条
func (s *RoomService) allowSend(identity string) bool {
	s.limiterLock.Lock()
	limiter, ok := s.limiters[identity]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.roomCfg.SendCooldown), 1)
		s.limiters[identity] = limiter
	}
	s.limiterLock.Unlock()

	return limiter.Allow()
}
