package chatclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chat-room/internal/event"
	"chat-room/internal/model"
	"chat-room/pkg/jwt"
)

var (
	// ErrRateLimited 发送冷却未结束
	ErrRateLimited = errors.New("chatclient: 发送冷却中")
	// ErrSendFailed 发送请求失败，对应条目已标记为失败态
	ErrSendFailed = errors.New("chatclient: 消息发送失败")
	// ErrClosed 客户端已关闭
	ErrClosed = errors.New("chatclient: 客户端已关闭")
)

// Options 客户端连接参数
// Token与GuestName二选一：Token为登录用户凭证，GuestName为游客昵称
type Options struct {
	BaseURL        string        // 形如 http://host:port
	Token          string        // JWT令牌，可为空
	GuestName      string        // 游客昵称，Token为空时使用
	SendCooldown   time.Duration // 发送冷却，默认10s
	GroupWindow    time.Duration // 分组窗口，默认60s
	PendingTimeout time.Duration // 待确认超时，默认15s
	EventBuffer    int           // 事件通道容量，默认256
	HTTPClient     *http.Client  // 可选，默认10s超时
}

// Client 房间客户端
// 本地存储、分组、限流与通知通道的组合入口
type Client struct {
	opts    Options
	store   *Store
	limiter *SendLimiter
	httpc   *http.Client

	conn    *websocket.Conn
	writeMu sync.Mutex

	events   chan event.Envelope
	presence atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial 建立到房间服务的连接并初始化本地存储
// 连接成功后自动拉取一批历史消息填充存储
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("chatclient: BaseURL不能为空")
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = DefaultPendingTimeout
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		opts:    opts,
		store:   NewStore(),
		limiter: NewSendLimiter(opts.SendCooldown),
		httpc:   httpc,
		events:  make(chan event.Envelope, opts.EventBuffer),
		closed:  make(chan struct{}),
	}

	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("chatclient: 连接通知通道失败: %w", err)
	}
	c.conn = conn

	if err := c.loadHistory(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readPump()
	return c, nil
}

// websocketURL 从BaseURL推导通知通道地址
func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("chatclient: BaseURL无效: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	} else if c.opts.GuestName != "" {
		q.Set("guest", c.opts.GuestName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readPump 从通知通道读取事件写入有界通道，由Run循环消费
func (c *Client) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case c.events <- env:
		case <-c.closed:
			return
		}
	}
}

// Run 驱动客户端事件循环，直到连接关闭或ctx取消
// 单循环消费事件通道：行变更进入本地存储，在场变动更新计数
// 周期性清理超时的待确认条目并向服务端发送心跳
func (c *Client) Run(ctx context.Context) error {
	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return ErrClosed
		case <-sweep.C:
			c.store.SweepExpired(time.Now(), c.opts.PendingTimeout)
		case <-heartbeat.C:
			c.sendHeartbeat()
		case env, ok := <-c.events:
			if !ok {
				return errors.New("chatclient: 通知通道已断开")
			}
			switch env.Type {
			case event.TypeChange:
				c.store.Apply(env.Change)
			case event.TypePresence:
				if env.Presence != nil {
					c.presence.Store(env.Presence.Count)
				}
			}
		}
	}
}

func (c *Client) sendHeartbeat() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteJSON(map[string]string{"type": "heartbeat"})
}

// Send 发送一条消息
// 冷却未结束时返回ErrRateLimited；请求失败时对应条目翻转为失败态，
// 重试即重新发送（产生新的待确认条目）
func (c *Client) Send(ctx context.Context, body string, repliedTo *uint) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", errors.New("chatclient: 消息内容不能为空")
	}
	if !c.limiter.TrySend(time.Now()) {
		return "", fmt.Errorf("%w（剩余%s）", ErrRateLimited, c.limiter.Remaining(time.Now()).Round(time.Second))
	}

	pendingID := c.store.Append(c.identity(), body, repliedTo)

	payload, _ := json.Marshal(map[string]interface{}{
		"body":       body,
		"replied_to": repliedTo,
	})
	if err := c.post(ctx, "/api/v1/messages", payload); err != nil {
		c.store.MarkFailed(pendingID)
		return pendingID, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return pendingID, nil
}

// identity 当前客户端的发送者身份
func (c *Client) identity() string {
	if c.opts.GuestName != "" && c.opts.Token == "" {
		return c.opts.GuestName
	}
	// 服务端以令牌声明为准，本地仅用于乐观条目匹配
	if c.opts.Token != "" {
		if claims, err := parseIdentity(c.opts.Token); err == nil && claims != "" {
			return claims
		}
	}
	return "anonymous"
}

// parseIdentity 从JWT载荷中提取用户名（不校验签名，仅本地展示用）
func parseIdentity(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", errors.New("令牌格式无效")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", err
	}
	var claims struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", err
	}
	if name, ok := claims.Data["username"].(string); ok {
		return name, nil
	}
	return "", errors.New("令牌缺少用户名声明")
}

// post 发送带身份头的POST请求并校验响应信封
func (c *Client) post(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("响应解析失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK || envelope.Code != 0 {
		return fmt.Errorf("服务端拒绝(%d): %s", resp.StatusCode, envelope.Message)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	} else if c.opts.GuestName != "" {
		req.Header.Set(jwt.GuestNameHeader, c.opts.GuestName)
	}
}

// loadHistory 拉取初始历史批量填充本地存储
func (c *Client) loadHistory(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/api/v1/messages", nil)
	if err != nil {
		return err
	}
	c.setAuth(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("chatclient: 拉取历史失败: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Code int             `json:"code"`
		Data []model.Message `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("chatclient: 历史解析失败: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("chatclient: 历史拉取被拒绝(code=%d)", envelope.Code)
	}
	c.store.LoadHistory(envelope.Data)
	return nil
}

// Snapshot 当前本地存储快照，按时间升序
func (c *Client) Snapshot() []Entry {
	return c.store.Snapshot()
}

// Groups 当前快照按发送者分组后的展示结构
func (c *Client) Groups() []Group {
	return GroupEntries(c.store.Snapshot(), c.opts.GroupWindow)
}

// Resolve 解析回复引用
func (c *Client) Resolve(replyID uint) ReplyPreview {
	return c.store.Resolve(replyID)
}

// PresenceCount 最近一次在场事件中的在场连接数
func (c *Client) PresenceCount() int64 {
	return c.presence.Load()
}

// Remaining 距下次允许发送的剩余冷却
func (c *Client) Remaining() time.Duration {
	return c.limiter.Remaining(time.Now())
}

// Close 关闭客户端与底层连接
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
