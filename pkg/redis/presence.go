package redis

import (
	"encoding/json"
	"fmt"
	"time"
)

// PresenceEntry 单个连接的在场记录
// 以连接为粒度而不是用户：同一身份开多个标签页记多个连接
type PresenceEntry struct {
	ConnID   string    `json:"conn_id"`
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joined_at"`
}

// 在场状态相关常量
const (
	PresenceKeyPrefix = "chat:presence:conn:" // 连接在场记录key前缀
	RoomSetKeyPrefix  = "chat:room:"          // 房间在场集合key前缀
	PresenceTTL       = 2 * time.Minute       // 在场记录TTL（2倍心跳周期）
)

func roomSetKey(room string) string {
	return fmt.Sprintf("%sonline:%s", RoomSetKeyPrefix, room)
}

func presenceKey(connID string) string {
	return PresenceKeyPrefix + connID
}

// AddPresence 记录连接加入房间
func AddPresence(room, connID, identity string) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	entry := PresenceEntry{
		ConnID:   connID,
		Identity: identity,
		JoinedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化在场记录失败: %w", err)
	}

	// 连接记录带TTL，传输层失联后由TTL兜底清理
	if err := Set(presenceKey(connID), data, PresenceTTL); err != nil {
		return fmt.Errorf("写入在场记录失败: %w", err)
	}

	if err := client.SAdd(ctx, roomSetKey(room), connID).Err(); err != nil {
		return fmt.Errorf("更新房间在场集合失败: %w", err)
	}

	return nil
}

// RemovePresence 移除连接的在场记录
func RemovePresence(room, connID string) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	if err := Del(presenceKey(connID)); err != nil {
		return fmt.Errorf("删除在场记录失败: %w", err)
	}

	if err := client.SRem(ctx, roomSetKey(room), connID).Err(); err != nil {
		return fmt.Errorf("从房间在场集合移除失败: %w", err)
	}

	return nil
}

// RefreshPresence 心跳续期（延长TTL）
func RefreshPresence(connID string) error {
	exists, err := Exists(presenceKey(connID))
	if err != nil {
		return fmt.Errorf("检查在场记录失败: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("连接不在场")
	}

	if err := Expire(presenceKey(connID), PresenceTTL); err != nil {
		return fmt.Errorf("在场记录续期失败: %w", err)
	}

	return nil
}

// PresenceCount 房间当前在场连接数（最终一致）
func PresenceCount(room string) (int64, error) {
	if client == nil {
		return 0, fmt.Errorf("redis客户端未初始化")
	}

	return client.SCard(ctx, roomSetKey(room)).Result()
}

// GetPresenceEntries 获取房间当前在场记录
func GetPresenceEntries(room string) ([]PresenceEntry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	connIDs, err := client.SMembers(ctx, roomSetKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取房间在场集合失败: %w", err)
	}

	var entries []PresenceEntry
	for _, connID := range connIDs {
		data, err := Get(presenceKey(connID))
		if err != nil {
			// TTL已过期的连接，顺手从集合剔除
			client.SRem(ctx, roomSetKey(room), connID)
			continue
		}
		var entry PresenceEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// SweepExpiredPresence 清理TTL已过期的在场记录（定期任务）
// 返回被清理的连接ID，调用方据此广播离开事件
func SweepExpiredPresence(room string) ([]string, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	connIDs, err := client.SMembers(ctx, roomSetKey(room)).Result()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, connID := range connIDs {
		exists, err := Exists(presenceKey(connID))
		if err != nil {
			continue
		}
		if exists == 0 {
			client.SRem(ctx, roomSetKey(room), connID)
			removed = append(removed, connID)
		}
	}

	return removed, nil
}
