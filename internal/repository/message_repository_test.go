package repository

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chat-room/internal/model"
)

// newTestRepo 基于临时文件sqlite的仓储，生命周期随测试结束
func newTestRepo(t *testing.T) *MessageRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_busy_timeout=10000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Message{}))

	return NewMessageRepository(db)
}

func seedMessage(t *testing.T, repo *MessageRepository, sender, body string) *model.Message {
	t.Helper()
	m := &model.Message{Body: body, SenderIdentity: sender}
	require.NoError(t, repo.Create(m))
	require.NotZero(t, m.ID)
	return m
}

func TestMessageRepositoryCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	created := seedMessage(t, repo, "alice", "hello")

	got, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, "alice", got.SenderIdentity)
	assert.False(t, got.IsDeleted)
	assert.Nil(t, got.EditedAt)
}

func TestMessageRepositoryGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID(12345)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepositoryListRecentBoundedAscending(t *testing.T) {
	repo := newTestRepo(t)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		m := &model.Message{
			Body:           fmt.Sprintf("msg-%d", i),
			SenderIdentity: "alice",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(m))
	}

	messages, err := repo.ListRecent(3)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// 最新3条，升序返回
	assert.Equal(t, "msg-2", messages[0].Body)
	assert.Equal(t, "msg-3", messages[1].Body)
	assert.Equal(t, "msg-4", messages[2].Body)
}

func TestMessageRepositoryEdit(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "before")

	edited, err := repo.Edit(m.ID, "alice", "after")
	require.NoError(t, err)
	assert.Equal(t, "after", edited.Body)
	require.NotNil(t, edited.EditedAt, "编辑必须落下edited_at")
	assert.Equal(t, m.CreatedAt.Unix(), edited.CreatedAt.Unix(), "编辑不应改变created_at")
}

func TestMessageRepositoryEditPermission(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "hers")

	_, err := repo.Edit(m.ID, "bob", "mine now")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = repo.Edit(99999, "bob", "ghost")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepositoryEditDeletedRejected(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "gone soon")

	_, err := repo.SoftDelete(m.ID, "alice")
	require.NoError(t, err)

	_, err = repo.Edit(m.ID, "alice", "resurrect")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepositorySoftDeleteKeepsRowReadable(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "reply target")

	deleted, err := repo.SoftDelete(m.ID, "alice")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	// 软删除的行仍可按ID读到，回复引用解析依赖这一点
	got, err := repo.GetByID(m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "reply target", got.Body)
}

func TestMessageRepositorySoftDeletePermission(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "hers")

	_, err := repo.SoftDelete(m.ID, "bob")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestMessageRepositorySetPinned(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "important")

	pinned, err := repo.SetPinned(m.ID, true)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	unpinned, err := repo.SetPinned(m.ID, false)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
}

func TestMessageRepositoryToggleReaction(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "react to me")

	after, err := repo.ToggleReaction(m.ID, "👍", "bob")
	require.NoError(t, err)
	assert.True(t, after.Reactions.Has("👍", "bob"))

	// 再次切换即移除，空集合剪除符号键
	after, err = repo.ToggleReaction(m.ID, "👍", "bob")
	require.NoError(t, err)
	_, exists := after.Reactions["👍"]
	assert.False(t, exists)

	_, err = repo.ToggleReaction(99999, "👍", "bob")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestMessageRepositoryConcurrentReactionsSerialize(t *testing.T) {
	repo := newTestRepo(t)
	m := seedMessage(t, repo, "alice", "pile on")

	const reactors = 8
	var wg sync.WaitGroup
	wg.Add(reactors)
	for i := 0; i < reactors; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := repo.ToggleReaction(m.ID, "🔥", fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 并发切换经事务串行化，互不覆盖
	got, err := repo.GetByID(m.ID)
	require.NoError(t, err)
	assert.Equal(t, reactors, got.Reactions.Count("🔥"))
}
