package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-room/internal/model"
)

var groupBase = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func entryAt(sender string, offset time.Duration) Entry {
	return Entry{
		Message: model.Message{
			Body:           "hello",
			SenderIdentity: sender,
			CreatedAt:      groupBase.Add(offset),
		},
		State: StateConfirmed,
	}
}

func deletedEntryAt(sender string, offset time.Duration) Entry {
	e := entryAt(sender, offset)
	e.Message.IsDeleted = true
	return e
}

func TestGroupEntriesJoinsWithinWindow(t *testing.T) {
	entries := []Entry{
		entryAt("alice", 0),
		entryAt("alice", 30*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 1)
	assert.Equal(t, "alice", groups[0].Sender)
	assert.Len(t, groups[0].Entries, 2)
}

func TestGroupEntriesSplitsBeyondWindow(t *testing.T) {
	entries := []Entry{
		entryAt("alice", 0),
		entryAt("alice", 90*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 2)
}

func TestGroupEntriesExactWindowSplits(t *testing.T) {
	// 间隔等于窗口时不合并（条件是严格小于）
	entries := []Entry{
		entryAt("alice", 0),
		entryAt("alice", 60*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 2)
}

func TestGroupEntriesSplitsOnSenderChange(t *testing.T) {
	entries := []Entry{
		entryAt("alice", 0),
		entryAt("bob", 5*time.Second),
		entryAt("alice", 10*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 3)
	assert.Equal(t, "alice", groups[0].Sender)
	assert.Equal(t, "bob", groups[1].Sender)
	assert.Equal(t, "alice", groups[2].Sender)
}

func TestGroupEntriesSkipsDeleted(t *testing.T) {
	entries := []Entry{
		entryAt("alice", 0),
		deletedEntryAt("alice", 40*time.Second),
		entryAt("alice", 50*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Entries, 2, "已删除条目不应出现在分组中")
}

func TestGroupEntriesGapMeasuredAgainstNonDeletedPredecessor(t *testing.T) {
	// 删除条目不作为间隔参照：t0与t70的间隔是70s，超窗应分组
	entries := []Entry{
		entryAt("alice", 0),
		deletedEntryAt("alice", 50*time.Second),
		entryAt("alice", 70*time.Second),
	}

	groups := GroupEntries(entries, DefaultGroupWindow)
	require.Len(t, groups, 2)
}

func TestGroupEntriesEmptyInput(t *testing.T) {
	assert.Empty(t, GroupEntries(nil, DefaultGroupWindow))
}
