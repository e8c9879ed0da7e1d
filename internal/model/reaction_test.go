package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionMapToggleAdd(t *testing.T) {
	var r ReactionMap

	next := r.Toggle("👍", "alice")
	assert.True(t, next.Has("👍", "alice"))
	assert.Equal(t, 1, next.Count("👍"))

	next = next.Toggle("👍", "bob")
	assert.Equal(t, 2, next.Count("👍"))
	assert.True(t, next.Has("👍", "alice"))
	assert.True(t, next.Has("👍", "bob"))
}

func TestReactionMapTogglePairIdempotence(t *testing.T) {
	base := ReactionMap{"🔥": {"alice", "bob"}}

	// 同一身份连续切换两次等于没有切换
	after := base.Toggle("🔥", "carol").Toggle("🔥", "carol")
	assert.Equal(t, base, after)

	// 移除再添加也回到原状态（顺序可能不同，集合语义相同）
	after = base.Toggle("🔥", "alice").Toggle("🔥", "alice")
	assert.ElementsMatch(t, base["🔥"], after["🔥"])
}

func TestReactionMapTogglePrunesEmptySet(t *testing.T) {
	r := ReactionMap{"👍": {"alice"}}

	next := r.Toggle("👍", "alice")
	_, exists := next["👍"]
	assert.False(t, exists, "最后一个身份移除后符号键应被删除")
	assert.Equal(t, 0, next.Count("👍"))
}

func TestReactionMapToggleIsPure(t *testing.T) {
	r := ReactionMap{"👍": {"alice"}}

	next := r.Toggle("👍", "bob")
	require.Equal(t, 2, next.Count("👍"))

	// 原值不受影响
	assert.Equal(t, 1, r.Count("👍"))
	assert.False(t, r.Has("👍", "bob"))
}

func TestReactionMapHasAndCountOnNil(t *testing.T) {
	var r ReactionMap
	assert.False(t, r.Has("👍", "alice"))
	assert.Equal(t, 0, r.Count("👍"))
}
