package chatclient

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-room/internal/event"
	"chat-room/internal/model"
)

func insertEvent(id uint, sender, body string, at time.Time) *event.ChangeEvent {
	return &event.ChangeEvent{
		Kind: event.KindInsert,
		Message: &model.Message{
			ID:             id,
			Body:           body,
			SenderIdentity: sender,
			CreatedAt:      at,
		},
	}
}

func TestStoreSnapshotSortedAscending(t *testing.T) {
	s := NewStore()
	now := time.Now()

	// 乱序应用，快照必须升序
	s.Apply(insertEvent(3, "carol", "third", now.Add(2*time.Second)))
	s.Apply(insertEvent(1, "alice", "first", now))
	s.Apply(insertEvent(2, "bob", "second", now.Add(time.Second)))
	s.Append("dave", "local", nil)

	snap := s.Snapshot()
	require.Len(t, snap, 4)
	for i := 1; i < len(snap); i++ {
		assert.False(t, snap[i].Message.CreatedAt.Before(snap[i-1].Message.CreatedAt),
			"快照必须按created_at升序")
	}
}

func TestStoreAppendMonotonicTimestamps(t *testing.T) {
	s := NewStore()

	// 快速连续追加也不允许时间戳回退或相等
	for i := 0; i < 50; i++ {
		s.Append("alice", fmt.Sprintf("msg-%d", i), nil)
	}

	snap := s.Snapshot()
	require.Len(t, snap, 50)
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i].Message.CreatedAt.After(snap[i-1].Message.CreatedAt))
	}
}

func TestStorePendingReconciliation(t *testing.T) {
	s := NewStore()

	pendingID := s.Append("alice", "hello room", nil)
	require.Len(t, s.Snapshot(), 1)
	assert.Equal(t, StatePending, s.Snapshot()[0].State)

	// 服务端确认：同发送者同内容，时间在容差窗口内
	s.Apply(insertEvent(42, "alice", "hello room", time.Now()))

	snap := s.Snapshot()
	require.Len(t, snap, 1, "确认不应产生重复条目")
	assert.Equal(t, StateConfirmed, snap[0].State)
	assert.Equal(t, uint(42), snap[0].Message.ID)
	assert.Equal(t, pendingID, snap[0].PendingID)
}

func TestStorePendingMatchWindowBoundary(t *testing.T) {
	s := NewStore()

	s.Append("alice", "hello room", nil)

	// 同发送者同内容，但时间超出容差窗口：不认领待确认条目
	s.Apply(insertEvent(42, "alice", "hello room", time.Now().Add(11*time.Second)))

	snap := s.Snapshot()
	require.Len(t, snap, 2, "窗口外的回声应作为独立的已确认条目插入")

	states := []string{snap[0].State, snap[1].State}
	assert.Contains(t, states, StatePending)
	assert.Contains(t, states, StateConfirmed)

	// 窗口内的回声仍然正常认领
	s.Apply(insertEvent(43, "alice", "hello room", time.Now().Add(9*time.Second)))
	snap = s.Snapshot()
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, StateConfirmed, e.State)
	}
}

func TestStoreInsertWithoutPendingMatch(t *testing.T) {
	s := NewStore()

	s.Append("alice", "hello", nil)
	// 不同发送者的插入不能吞掉本地待确认条目
	s.Apply(insertEvent(7, "bob", "hello", time.Now()))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
}

func TestStoreUpdateIsFullReplacement(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Apply(insertEvent(1, "alice", "original", now))

	edited := time.Now()
	s.Apply(&event.ChangeEvent{
		Kind: event.KindUpdate,
		Message: &model.Message{
			ID:             1,
			Body:           "edited",
			SenderIdentity: "alice",
			CreatedAt:      now,
			EditedAt:       &edited,
			IsPinned:       true,
		},
	})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "edited", snap[0].Message.Body)
	assert.True(t, snap[0].Message.IsPinned)
	require.NotNil(t, snap[0].Message.EditedAt)
}

func TestStoreDeleteRetainedForReplyResolution(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Apply(insertEvent(1, "alice", "will be deleted", now))
	s.Apply(insertEvent(2, "bob", "reply target ok", now.Add(time.Second)))

	s.Apply(&event.ChangeEvent{
		Kind: event.KindDelete,
		Message: &model.Message{
			ID:             1,
			Body:           "will be deleted",
			SenderIdentity: "alice",
			CreatedAt:      now,
			IsDeleted:      true,
		},
	})

	snap := s.Snapshot()
	require.Len(t, snap, 1, "已删除的行不应出现在快照中")
	assert.Equal(t, uint(2), snap[0].Message.ID)

	// 已删除的引用解析为占位文案
	preview := s.Resolve(1)
	assert.False(t, preview.Available)
	assert.Equal(t, ReplyUnavailableText, preview.Body)

	// 存活的引用解析为原文
	preview = s.Resolve(2)
	assert.True(t, preview.Available)
	assert.Equal(t, "reply target ok", preview.Body)
	assert.Equal(t, "bob", preview.Sender)

	// 未知ID同样返回占位
	preview = s.Resolve(999)
	assert.False(t, preview.Available)
	assert.Equal(t, ReplyUnavailableText, preview.Body)
}

func TestStoreSweepExpiredMarksFailed(t *testing.T) {
	s := NewStore()
	pendingID := s.Append("alice", "stuck message", nil)

	// 未超时不翻转
	expired := s.SweepExpired(time.Now(), DefaultPendingTimeout)
	assert.Empty(t, expired)

	expired = s.SweepExpired(time.Now().Add(16*time.Second), DefaultPendingTimeout)
	require.Equal(t, []string{pendingID}, expired)

	// 失败条目保留展示，不静默丢弃
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StateFailed, snap[0].State)

	// 不会重复翻转
	expired = s.SweepExpired(time.Now().Add(time.Minute), DefaultPendingTimeout)
	assert.Empty(t, expired)
}

func TestStoreMarkFailed(t *testing.T) {
	s := NewStore()
	pendingID := s.Append("alice", "doomed", nil)

	s.MarkFailed(pendingID)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, StateFailed, snap[0].State)

	// 失败条目不再参与待确认匹配
	s.Apply(insertEvent(9, "alice", "doomed", time.Now()))
	assert.Len(t, s.Snapshot(), 2)
}

func TestStoreLoadHistory(t *testing.T) {
	s := NewStore()
	now := time.Now()

	s.LoadHistory([]model.Message{
		{ID: 1, Body: "kept", SenderIdentity: "alice", CreatedAt: now},
		{ID: 2, Body: "gone", SenderIdentity: "bob", CreatedAt: now.Add(time.Second), IsDeleted: true},
	})

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, uint(1), snap[0].Message.ID)

	preview := s.Resolve(2)
	assert.False(t, preview.Available)
}
