package repository

import (
	"errors"
	"time"

	"chat-room/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 仓储层错误
var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// MessageRepository 消息数据仓储
// 所有变更都是针对具体字段的局部更新，从不整行覆盖
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 创建消息，ID与CreatedAt由存储层分配
func (r *MessageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

// GetByID 根据ID获取消息（包含软删除的行，回复引用解析需要）
func (r *MessageRepository) GetByID(id uint) (*model.Message, error) {
	var message model.Message
	err := r.db.First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// ListRecent 获取房间最近的消息，按created_at升序返回
// 读取有界：最多limit条，从不全表扫描
func (r *MessageRepository) ListRecent(limit int) ([]*model.Message, error) {
	var messages []*model.Message

	// 先按时间倒序取最新limit条，再反转为升序
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Edit 编辑消息内容（仅限发送者本人）
// 局部更新：只写body与edited_at
func (r *MessageRepository) Edit(id uint, identity, body string) (*model.Message, error) {
	now := time.Now()
	result := r.db.Model(&model.Message{}).
		Where("id = ? AND sender_identity = ? AND is_deleted = ?", id, identity, false).
		Updates(map[string]interface{}{
			"body":      body,
			"edited_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.explainMiss(id, identity)
	}

	return r.GetByID(id)
}

// SetPinned 置顶/取消置顶
func (r *MessageRepository) SetPinned(id uint, pinned bool) (*model.Message, error) {
	result := r.db.Model(&model.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("is_pinned", pinned)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrMessageNotFound
	}

	return r.GetByID(id)
}

// SoftDelete 软删除（仅限发送者本人）
// 只翻转is_deleted标记，行保留以维持回复引用
func (r *MessageRepository) SoftDelete(id uint, identity string) (*model.Message, error) {
	result := r.db.Model(&model.Message{}).
		Where("id = ? AND sender_identity = ? AND is_deleted = ?", id, identity, false).
		Update("is_deleted", true)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.explainMiss(id, identity)
	}

	return r.GetByID(id)
}

// ToggleReaction 切换表情反应
// 事务内行锁读取当前值、应用切换、只回写reactions列
// 数据库是并发反应者的串行化点：两个客户端同秒切换同一表情也不会覆盖彼此
func (r *MessageRepository) ToggleReaction(id uint, symbol, identity string) (*model.Message, error) {
	var updated *model.Message

	err := r.db.Transaction(func(tx *gorm.DB) error {
		read := tx
		// sqlite不支持行锁语法，其单写事务本身就是串行的
		if tx.Dialector.Name() == "mysql" {
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var message model.Message
		if err := read.First(&message, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		next := message.Reactions.Toggle(symbol, identity)
		// 裸map更新不经过serializer:json，必须经结构体字段写入
		if err := tx.Model(&model.Message{}).
			Where("id = ?", id).
			Select("reactions").
			Updates(&model.Message{Reactions: next}).Error; err != nil {
			return err
		}

		message.Reactions = next
		updated = &message
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// explainMiss 区分"消息不存在"与"无权操作"
func (r *MessageRepository) explainMiss(id uint, identity string) error {
	message, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if message.SenderIdentity != identity {
		return ErrPermissionDenied
	}
	return ErrMessageNotFound
}
