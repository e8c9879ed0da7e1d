package websocket

import (
	"sync"
	"time"

	"chat-room/internal/event"
	"chat-room/pkg/logger"
	"chat-room/pkg/redis"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Client 代表一个已加入房间的WebSocket连接
// ConnID: 连接ID（snowflake，同一身份开多个标签页各記一个连接）
// Identity: 发送者身份（用户名或游客昵称）
// Send: 下行事件通道

type Client struct {
	ConnID   string
	Identity string
	Send     chan []byte
}

// Manager 房间通知通道：向所有在场连接广播行变更与在场事件
// 单一逻辑房间，所有连接收到同一事件流（包括变更的发起者自己）

type Manager struct {
	clients map[string]*Client // 在场连接，key为ConnID
	lock    sync.RWMutex
	node    *snowflake.Node
}

var manager *Manager

func init() {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic("snowflake节点初始化失败: " + err.Error())
	}
	manager = &Manager{
		clients: make(map[string]*Client),
		node:    node,
	}
}

// GetManager 获取全局WebSocket管理器
func GetManager() *Manager {
	return manager
}

// NextConnID 分配连接ID
func (m *Manager) NextConnID() string {
	return m.node.Generate().String()
}

// AddClient 添加新连接
func (m *Manager) AddClient(client *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.clients[client.ConnID] = client
}

// RemoveClient 移除连接
func (m *Manager) RemoveClient(connID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if c, ok := m.clients[connID]; ok {
		close(c.Send)
		delete(m.clients, connID)
	}
}

// Count 当前在场连接数
func (m *Manager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// Broadcast 向所有在场连接广播事件（包括事件的发起者）
// 发送通道已满的连接直接跳过，由其读超时机制负责断开
func (m *Manager) Broadcast(msg []byte) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, client := range m.clients {
		select {
		case client.Send <- msg:
		default:
			// 慢连接，跳过本条
		}
	}
}

// BroadcastEnvelope 序列化并广播事件信封
func (m *Manager) BroadcastEnvelope(env *event.Envelope) {
	data, err := env.Encode()
	if err != nil {
		logger.Error("事件序列化失败", zap.Error(err))
		return
	}
	m.Broadcast(data)
}

// StartPresenceReaper 定期清理TTL过期的在场记录并广播离开事件
// 覆盖传输层失联（标签页强杀、网络中断）的场景
func (m *Manager) StartPresenceReaper(room string, interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed, err := redis.SweepExpiredPresence(room)
				if err != nil {
					logger.Warn("清理过期在场记录失败", zap.Error(err))
					continue
				}
				for _, connID := range removed {
					m.RemoveClient(connID)
					count, _ := redis.PresenceCount(room)
					m.BroadcastEnvelope(event.NewPresence(event.ActionLeave, connID, count))
					logger.Info("在场记录过期清理",
						zap.String("conn_id", connID),
						zap.Int64("count", count),
					)
				}
			case <-stop:
				return
			}
		}
	}()
}
