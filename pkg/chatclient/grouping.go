package chatclient

import (
	"time"
)

// DefaultGroupWindow 相邻消息合并到同一分组的最大时间间隔
const DefaultGroupWindow = 60 * time.Second

// Group 同一发送者的连续消息分组
type Group struct {
	Sender  string
	Entries []Entry
}

// GroupEntries 将按时间升序排列的条目合并为展示分组
// 与前一分组合并的条件：发送者相同，且与最近一条未删除前驱的间隔小于window
// 已删除的条目不参与分组，也不计入间隔判断
func GroupEntries(entries []Entry, window time.Duration) []Group {
	if window <= 0 {
		window = DefaultGroupWindow
	}

	var groups []Group
	var prev *Entry
	for i := range entries {
		e := entries[i]
		if e.Message.IsDeleted {
			continue
		}

		join := prev != nil &&
			len(groups) > 0 &&
			prev.Message.SenderIdentity == e.Message.SenderIdentity &&
			e.Message.CreatedAt.Sub(prev.Message.CreatedAt) < window

		if join {
			last := &groups[len(groups)-1]
			last.Entries = append(last.Entries, e)
		} else {
			groups = append(groups, Group{
				Sender:  e.Message.SenderIdentity,
				Entries: []Entry{e},
			})
		}
		prev = &entries[i]
	}
	return groups
}
