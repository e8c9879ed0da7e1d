package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chat-room/config"
	"chat-room/internal/event"
	"chat-room/pkg/jwt"
	"chat-room/pkg/logger"
	"chat-room/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// WsHandler 通知通道入口
// 认证用户通过token识别身份，游客通过guest参数，两者都允许加入
// 加入后收到完整事件流：消息表行变更 + 在场变动
func WsHandler(c *gin.Context) {
	identity := resolveIdentity(c)
	if identity == "" {
		identity = "anonymous"
	}

	// 回显子协议，避免客户端提示 "Server sent no subprotocol"
	respHeader := http.Header{}
	if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
		respHeader.Set("Sec-WebSocket-Protocol", protocol)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		return
	}

	roomCfg := c.MustGet("room_config").(config.RoomConfig)
	wsCfg := c.MustGet("ws_config").(config.WebSocketConfig)
	m := GetManager()

	client := &Client{
		ConnID:   m.NextConnID(),
		Identity: identity,
		Send:     make(chan []byte, 256),
	}
	m.AddClient(client)

	// 连接进入JOINED状态：登记在场记录并广播加入事件
	_ = redis.AddPresence(roomCfg.Name, client.ConnID, identity)
	joinCount, _ := redis.PresenceCount(roomCfg.Name)
	m.BroadcastEnvelope(event.NewPresence(event.ActionJoin, client.ConnID, joinCount))

	logger.Info("连接加入房间",
		zap.String("conn_id", client.ConnID),
		zap.String("identity", identity),
		zap.Int64("count", joinCount),
	)

	defer func() {
		// 任何传输层断开都走这里：移除在场记录并广播离开事件
		m.RemoveClient(client.ConnID)
		_ = redis.RemovePresence(roomCfg.Name, client.ConnID)
		leaveCount, _ := redis.PresenceCount(roomCfg.Name)
		m.BroadcastEnvelope(event.NewPresence(event.ActionLeave, client.ConnID, leaveCount))

		logger.Info("连接离开房间",
			zap.String("conn_id", client.ConnID),
			zap.Int64("count", leaveCount),
		)
	}()

	// 写协程 + 定时发送ping心跳
	// ping失败时关闭连接，读循环随之出错退出并走defer清理
	go func() {
		ticker := time.NewTicker(wsCfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				_ = conn.WriteMessage(websocket.TextMessage, msg)
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// 读协程（接收心跳）。若超时未收到任何读事件则断开
	_ = conn.SetReadDeadline(time.Now().Add(wsCfg.ReadTimeout))
	conn.SetPongHandler(func(appData string) error {
		return conn.SetReadDeadline(time.Now().Add(wsCfg.ReadTimeout))
	})
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsCfg.ReadTimeout))

		var msg map[string]interface{}
		if err := json.Unmarshal(payload, &msg); err == nil {
			if t, ok := msg["type"].(string); ok && t == "heartbeat" {
				// 心跳续期在场记录TTL
				_ = redis.RefreshPresence(client.ConnID)
			}
		}
	}
}

// resolveIdentity 解析连接身份
// 优先token（query参数或子协议头），其次guest参数
func resolveIdentity(c *gin.Context) string {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Sec-WebSocket-Protocol"), "Bearer ")
	}

	if token != "" {
		jwtCfg := c.MustGet("jwt_config").(config.JWTConfig)
		jwtSvc := jwt.NewJWTService(jwtCfg)
		if claims, err := jwtSvc.ValidateToken(token); err == nil && claims.Data != nil {
			if username, ok := claims.Data["username"].(string); ok {
				return username
			}
		}
	}

	return strings.TrimSpace(c.Query("guest"))
}
