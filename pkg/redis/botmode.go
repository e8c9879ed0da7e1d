package redis

import (
	"fmt"
)

// 助手回复模式偏好
// 以固定设置名为key按身份存储，对应客户端"本地设置"的服务端落点
const (
	BotModeSettingName = "assistant_mode" // 固定设置名
	BotModeKeyPrefix   = "chat:setting:"  // 设置key前缀
	DefaultBotMode     = "concise"        // 默认回复模式
)

func botModeKey(identity string) string {
	return fmt.Sprintf("%s%s:%s", BotModeKeyPrefix, BotModeSettingName, identity)
}

// SetBotMode 保存身份的助手回复模式偏好
func SetBotMode(identity, mode string) error {
	if client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}

	// 偏好不设TTL，显式修改才变化
	if err := Set(botModeKey(identity), mode, 0); err != nil {
		return fmt.Errorf("保存助手模式偏好失败: %w", err)
	}
	return nil
}

// GetBotMode 读取身份的助手回复模式偏好，未设置时返回默认模式
func GetBotMode(identity string) string {
	if client == nil {
		return DefaultBotMode
	}

	mode, err := Get(botModeKey(identity))
	if err != nil || mode == "" {
		return DefaultBotMode
	}
	return mode
}
