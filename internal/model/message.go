package model

import (
	"time"
)

// AssistantIdentity 机器人助手的保留身份
// 普通用户与游客不允许占用该身份
const AssistantIdentity = "assistant"

// 助手回复模式
const (
	ModeConcise   = "concise"   // 简洁对话模式
	ModeAugmented = "augmented" // 检索增强模式（列表结果）
)

// Message 房间消息模型
// SenderIdentity: 登录用户名、游客昵称或保留的助手身份
// IsDeleted: 软删除标记（不使用gorm.DeletedAt，被删除的行仍需可读以解析回复引用）
// Reactions: 表情符号 -> 反应者身份集合，以JSON存储
// Mode: 仅助手消息携带，标记回复风格

type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	Body           string      `gorm:"type:text;not null;comment:消息内容" json:"body"`
	SenderIdentity string      `gorm:"type:varchar(64);not null;index;comment:发送者身份" json:"sender_identity"`
	CreatedAt      time.Time   `gorm:"index;comment:创建时间(排序依据)" json:"created_at"`
	EditedAt       *time.Time  `gorm:"comment:编辑时间" json:"edited_at,omitempty"`
	IsPinned       bool        `gorm:"default:false;comment:是否置顶" json:"is_pinned"`
	IsDeleted      bool        `gorm:"default:false;index;comment:软删除标记" json:"is_deleted"`
	RepliedTo      *uint       `gorm:"index;comment:被回复消息ID" json:"replied_to,omitempty"`
	Reactions      ReactionMap `gorm:"serializer:json;type:json;comment:表情反应" json:"reactions,omitempty"`
	Mode           string      `gorm:"type:varchar(32);comment:助手回复模式" json:"mode,omitempty"`
}

func (Message) TableName() string { return "message" }

// IsAssistant 是否为助手发出的消息
func (m *Message) IsAssistant() bool {
	return m.SenderIdentity == AssistantIdentity
}
