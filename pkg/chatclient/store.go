package chatclient

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"chat-room/internal/event"
	"chat-room/internal/model"
)

// 条目状态
const (
	StatePending   = "pending"   // 本地乐观写入，等待服务端确认
	StateConfirmed = "confirmed" // 服务端已确认的权威行
	StateFailed    = "failed"    // 发送失败或确认超时，保留展示以便重试
)

// 待确认条目与服务端插入事件的匹配容差
const pendingMatchWindow = 10 * time.Second

// 待确认条目的过期时间，超过后翻转为失败态
const DefaultPendingTimeout = 15 * time.Second

// 回复引用无法解析时展示的占位文案
const ReplyUnavailableText = "原消息不可用"

// Entry 本地存储中的一条消息
// PendingID仅本地乐观条目持有，确认后保留以便调用方关联
type Entry struct {
	Message   model.Message
	State     string
	PendingID string
}

// ReplyPreview 回复引用的解析结果
type ReplyPreview struct {
	Sender    string
	Body      string
	Available bool
}

// Store 客户端本地乐观存储
// 服务端下发的行变更为权威数据，本地乐观条目在确认前临时占位
type Store struct {
	mu sync.Mutex

	confirmed map[uint]*Entry         // 服务端ID -> 已确认条目
	local     []*Entry                // 待确认与失败的本地条目
	deleted   map[uint]*model.Message // 已软删除的行，保留供回复引用解析

	pendingSeq  uint64
	lastLocalAt time.Time // 保证本地临时时间戳单调递增
}

// NewStore 创建空的本地存储
func NewStore() *Store {
	return &Store{
		confirmed: make(map[uint]*Entry),
		deleted:   make(map[uint]*model.Message),
	}
}

// Append 追加一条本地乐观条目，返回pendingID
// 临时时间戳取当前时间与上一条本地时间戳的较大者，保证排序稳定
func (s *Store) Append(sender, body string, repliedTo *uint) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !now.After(s.lastLocalAt) {
		now = s.lastLocalAt.Add(time.Millisecond)
	}
	s.lastLocalAt = now

	s.pendingSeq++
	pendingID := fmt.Sprintf("pending-%d", s.pendingSeq)

	s.local = append(s.local, &Entry{
		Message: model.Message{
			Body:           body,
			SenderIdentity: sender,
			CreatedAt:      now,
			RepliedTo:      repliedTo,
		},
		State:     StatePending,
		PendingID: pendingID,
	})
	return pendingID
}

// Apply 应用服务端下发的行变更
// 插入事件优先尝试与待确认条目合并，避免同一条消息双重展示
func (s *Store) Apply(ev *event.ChangeEvent) {
	if ev == nil || ev.Message == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := *ev.Message
	switch ev.Kind {
	case event.KindInsert:
		if e := s.matchPending(&msg); e != nil {
			e.Message = msg
			e.State = StateConfirmed
			s.confirmed[msg.ID] = e
			s.dropLocal(e.PendingID)
			return
		}
		s.confirmed[msg.ID] = &Entry{Message: msg, State: StateConfirmed}
	case event.KindUpdate:
		// 服务端全量覆盖，最后写入者胜出
		if msg.IsDeleted {
			s.markDeleted(&msg)
			return
		}
		if e, ok := s.confirmed[msg.ID]; ok {
			e.Message = msg
		} else {
			s.confirmed[msg.ID] = &Entry{Message: msg, State: StateConfirmed}
		}
	case event.KindDelete:
		s.markDeleted(&msg)
	}
}

// matchPending 在±10s窗口内按发送者+内容匹配待确认条目
func (s *Store) matchPending(msg *model.Message) *Entry {
	for _, e := range s.local {
		if e.State != StatePending {
			continue
		}
		if e.Message.SenderIdentity != msg.SenderIdentity || e.Message.Body != msg.Body {
			continue
		}
		gap := msg.CreatedAt.Sub(e.Message.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= pendingMatchWindow {
			return e
		}
	}
	return nil
}

func (s *Store) markDeleted(msg *model.Message) {
	delete(s.confirmed, msg.ID)
	s.deleted[msg.ID] = msg
}

func (s *Store) dropLocal(pendingID string) {
	for i, e := range s.local {
		if e.PendingID == pendingID {
			s.local = append(s.local[:i], s.local[i+1:]...)
			return
		}
	}
}

// MarkFailed 将待确认条目标记为失败，保留展示
func (s *Store) MarkFailed(pendingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.local {
		if e.PendingID == pendingID && e.State == StatePending {
			e.State = StateFailed
			return
		}
	}
}

// SweepExpired 将超时未确认的待确认条目翻转为失败态
// 返回本次翻转的pendingID列表，失败条目保留在快照中，不会静默丢弃
func (s *Store) SweepExpired(now time.Time, timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, e := range s.local {
		if e.State == StatePending && now.Sub(e.Message.CreatedAt) > timeout {
			e.State = StateFailed
			expired = append(expired, e.PendingID)
		}
	}
	return expired
}

// Snapshot 返回按创建时间升序排列的全部可见条目
// 包含已确认、待确认与失败条目，不含已删除的行
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.confirmed)+len(s.local))
	for _, e := range s.confirmed {
		out = append(out, *e)
	}
	for _, e := range s.local {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Message.CreatedAt.Before(out[j].Message.CreatedAt)
	})
	return out
}

// Resolve 解析回复引用
// 被引用的行已删除或未知时返回占位文案
func (s *Store) Resolve(replyID uint) ReplyPreview {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.confirmed[replyID]; ok {
		return ReplyPreview{
			Sender:    e.Message.SenderIdentity,
			Body:      e.Message.Body,
			Available: true,
		}
	}
	if msg, ok := s.deleted[replyID]; ok {
		return ReplyPreview{Sender: msg.SenderIdentity, Body: ReplyUnavailableText}
	}
	return ReplyPreview{Body: ReplyUnavailableText}
}

// LoadHistory 以服务端历史批量初始化已确认条目
func (s *Store) LoadHistory(messages []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range messages {
		msg := messages[i]
		if msg.IsDeleted {
			s.deleted[msg.ID] = &msg
			continue
		}
		s.confirmed[msg.ID] = &Entry{Message: msg, State: StateConfirmed}
	}
}
