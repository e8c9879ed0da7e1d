package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chat-room/config"
	"chat-room/internal/model"
	"chat-room/internal/repository"
	"chat-room/pkg/assistant"
)

// fakeAssistant 记录请求并返回预置响应
type fakeAssistant struct {
	lastReq assistant.Request
	resp    *assistant.Response
	err     error
}

func (f *fakeAssistant) Ask(_ context.Context, req assistant.Request) (*assistant.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func newBotTestEnv(t *testing.T, fake *fakeAssistant) (*BotService, *repository.MessageRepository) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "chat.db") + "?_busy_timeout=10000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Message{}))

	repo := repository.NewMessageRepository(db)
	bot := NewBotService(fake, repo,
		config.RoomConfig{Name: "lobby", HistoryLimit: 50},
		config.AssistantConfig{Timeout: 5 * time.Second, HistorySize: 10},
	)
	return bot, repo
}

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantQuery   string
		wantSearch  bool
		wantCommand bool
	}{
		{"at前缀", "@bot what is go", "what is go", false, true},
		{"斜杠前缀", "/bot what is go", "what is go", false, true},
		{"大小写不敏感", "@Bot What Is Go", "What Is Go", false, true},
		{"检索命令", "/search rent a girlfriend", "rent a girlfriend", true, true},
		{"普通消息", "hello bot", "", false, false},
		{"前缀无空格", "@bothello", "", false, false},
		{"仅前缀", "@bot ", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, forceSearch, ok := detectCommand(tt.body)
			assert.Equal(t, tt.wantCommand, ok)
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantSearch, forceSearch)
		})
	}
}

func TestMaybeHandleIgnoresNonCommands(t *testing.T) {
	bot, _ := newBotTestEnv(t, &fakeAssistant{})

	assert.False(t, bot.MaybeHandle(&model.Message{Body: "just chatting"}))
	// 空查询的命令不派发
	assert.False(t, bot.MaybeHandle(&model.Message{Body: "@bot "}))
}

func TestDispatchSearchRendersMarkdownList(t *testing.T) {
	fake := &fakeAssistant{
		resp: &assistant.Response{
			Hits: []assistant.SearchHit{
				{Title: "Rent-A-Girlfriend", URL: "https://example.com/rag"},
				{Title: "Fandom wiki", URL: "https://example.com/wiki"},
			},
		},
	}
	bot, repo := newBotTestEnv(t, fake)

	trigger := &model.Message{Body: "/search rent a girlfriend", SenderIdentity: "alice"}
	require.NoError(t, repo.Create(trigger))

	query, forceSearch, ok := detectCommand(trigger.Body)
	require.True(t, ok)
	bot.dispatch(trigger, query, forceSearch)

	// 前缀剥离且强制检索模式
	assert.Equal(t, "rent a girlfriend", fake.lastReq.Message)
	assert.Equal(t, model.ModeAugmented, fake.lastReq.Mode)

	messages, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	reply := messages[1]
	assert.Equal(t, model.AssistantIdentity, reply.SenderIdentity)
	assert.Equal(t, model.ModeAugmented, reply.Mode)
	assert.Equal(t,
		"**1.** [Rent-A-Girlfriend](https://example.com/rag)\n**2.** [Fandom wiki](https://example.com/wiki)",
		reply.Body)
}

func TestDispatchConciseReply(t *testing.T) {
	fake := &fakeAssistant{resp: &assistant.Response{Reply: "Go是一门编译型语言。"}}
	bot, repo := newBotTestEnv(t, fake)

	trigger := &model.Message{Body: "@bot 什么是Go", SenderIdentity: "alice"}
	require.NoError(t, repo.Create(trigger))

	bot.dispatch(trigger, "什么是Go", false)

	messages, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Go是一门编译型语言。", messages[1].Body)
	assert.Equal(t, model.ModeConcise, messages[1].Mode)
}

func TestDispatchFailurePostsVisibleNotice(t *testing.T) {
	fake := &fakeAssistant{err: errors.New("upstream timeout")}
	bot, repo := newBotTestEnv(t, fake)

	trigger := &model.Message{Body: "@bot hello", SenderIdentity: "alice"}
	require.NoError(t, repo.Create(trigger))

	bot.dispatch(trigger, "hello", false)

	// 失败也要在消息流里可见
	messages, err := repo.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.AssistantIdentity, messages[1].SenderIdentity)
	assert.Contains(t, messages[1].Body, "抱歉")
}

func TestDispatchHistoryExcludesCommandsAndDeleted(t *testing.T) {
	fake := &fakeAssistant{resp: &assistant.Response{Reply: "ok"}}
	bot, repo := newBotTestEnv(t, fake)

	require.NoError(t, repo.Create(&model.Message{Body: "normal one", SenderIdentity: "alice"}))
	require.NoError(t, repo.Create(&model.Message{Body: "@bot old command", SenderIdentity: "alice"}))
	deleted := &model.Message{Body: "deleted one", SenderIdentity: "bob"}
	require.NoError(t, repo.Create(deleted))
	_, err := repo.SoftDelete(deleted.ID, "bob")
	require.NoError(t, err)
	require.NoError(t, repo.Create(&model.Message{Body: "assistant said", SenderIdentity: model.AssistantIdentity}))

	trigger := &model.Message{Body: "@bot question", SenderIdentity: "alice"}
	require.NoError(t, repo.Create(trigger))

	bot.dispatch(trigger, "question", false)

	var contents []string
	for _, turn := range fake.lastReq.History {
		contents = append(contents, turn.Content)
	}
	assert.Contains(t, contents, "normal one")
	assert.Contains(t, contents, "assistant said")
	assert.NotContains(t, contents, "@bot old command", "命令消息不进入上下文")
	assert.NotContains(t, contents, "deleted one", "已删除消息不进入上下文")

	// 助手消息的角色标记
	for _, turn := range fake.lastReq.History {
		if turn.Content == "assistant said" {
			assert.Equal(t, assistant.RoleAssistant, turn.Role)
		}
	}
}

func TestRenderReply(t *testing.T) {
	assert.Equal(t, "plain", renderReply(&assistant.Response{Reply: "  plain  "}))

	resp := &assistant.Response{
		Reply: "ignored when hits present",
		Hits:  []assistant.SearchHit{{Title: "T", URL: "https://u"}},
	}
	assert.Equal(t, "**1.** [T](https://u)", renderReply(resp))
}
