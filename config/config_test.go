package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromYAMLMissingFileUsesDefaults(t *testing.T) {
	cfg := loadFromYAML(filepath.Join(t.TempDir(), "no-such.yaml"))

	defaults := getDefaultConfig()
	assert.Equal(t, defaults.Room, cfg.Room)
	assert.Equal(t, defaults.WebSocket, cfg.WebSocket)
}

func TestLoadFromYAMLPartialFileKeepsDefaults(t *testing.T) {
	// 只配置server段，省略room/websocket段
	path := writeConfigFile(t, "server:\n  port: \"9090\"\n")

	cfg := loadFromYAML(path)
	defaults := getDefaultConfig()

	assert.Equal(t, "9090", cfg.Server.Port)

	// 省略的段不能落回零值：冷却为0会让限流失效
	assert.Equal(t, defaults.Room.SendCooldown, cfg.Room.SendCooldown)
	assert.Equal(t, defaults.Room.HistoryLimit, cfg.Room.HistoryLimit)
	assert.Equal(t, defaults.Room.Name, cfg.Room.Name)
	assert.Equal(t, defaults.WebSocket.PingInterval, cfg.WebSocket.PingInterval)
	assert.Equal(t, defaults.WebSocket.ReadTimeout, cfg.WebSocket.ReadTimeout)
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, "room:\n  name: \"den\"\n  historyLimit: 20\n")

	cfg := loadFromYAML(path)
	assert.Equal(t, "den", cfg.Room.Name)
	assert.Equal(t, 20, cfg.Room.HistoryLimit)

	// 同段内省略的字段同样保留默认
	defaults := getDefaultConfig()
	assert.Equal(t, defaults.Room.SendCooldown, cfg.Room.SendCooldown)
}
