package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-room/internal/model"
)

// 房间历史缓存
// 首次进入房间的批量加载走这份缓存，任何行变更后整体失效
const (
	HistoryKeyPrefix = "chat:history:" // 房间历史缓存key前缀
	HistoryCacheTTL  = 5 * time.Minute // 历史缓存TTL
)

func historyKey(room string) string {
	return HistoryKeyPrefix + room
}

// CacheHistory 缓存房间最近的消息列表（按created_at升序）
func CacheHistory(room string, messages []*model.Message) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("序列化历史消息失败: %w", err)
	}

	if err := Set(historyKey(room), data, HistoryCacheTTL); err != nil {
		return fmt.Errorf("缓存历史消息失败: %w", err)
	}

	return nil
}

// GetCachedHistory 读取房间历史缓存
func GetCachedHistory(room string) ([]*model.Message, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	data, err := Get(historyKey(room))
	if err != nil {
		return nil, err
	}

	var messages []*model.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("反序列化历史消息失败: %w", err)
	}

	return messages, nil
}

// InvalidateHistory 行变更后使历史缓存失效
// 变更事件本身经通知通道下发，缓存只服务初始批量加载，直接失效最稳妥
func InvalidateHistory(room string) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return Del(historyKey(room))
}
