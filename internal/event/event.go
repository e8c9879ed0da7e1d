package event

import (
	"encoding/json"
	"time"

	"chat-room/internal/model"
)

// 通知通道事件类型
const (
	TypeChange   = "change"   // 消息表行变更
	TypePresence = "presence" // 在场成员变动
)

// 行变更种类，与持久层的提交顺序一致下发
const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete" // 软删除标记翻转（行仍然保留）
)

// 在场动作
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Envelope 通知通道的统一下行载荷
// Change与Presence二选一，由Type区分
type Envelope struct {
	Type     string         `json:"type"`
	Change   *ChangeEvent   `json:"change,omitempty"`
	Presence *PresenceEvent `json:"presence,omitempty"`
}

// ChangeEvent 消息表的行变更事件
// Message携带变更后的完整行，字段以服务端为准
type ChangeEvent struct {
	Kind    string         `json:"kind"`
	Message *model.Message `json:"message"`
}

// PresenceEvent 在场成员加入/离开事件
// Count为事件发生后的在场连接数（最终一致）
type PresenceEvent struct {
	Action   string    `json:"action"`
	ConnID   string    `json:"conn_id"`
	Count    int64     `json:"count"`
	HappenAt time.Time `json:"happen_at"`
}

// NewChange 构造行变更信封
func NewChange(kind string, msg *model.Message) *Envelope {
	return &Envelope{
		Type:   TypeChange,
		Change: &ChangeEvent{Kind: kind, Message: msg},
	}
}

// NewPresence 构造在场变动信封
func NewPresence(action, connID string, count int64) *Envelope {
	return &Envelope{
		Type: TypePresence,
		Presence: &PresenceEvent{
			Action:   action,
			ConnID:   connID,
			Count:    count,
			HappenAt: time.Now(),
		},
	}
}

// Encode 序列化为下发字节
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
