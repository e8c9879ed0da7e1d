package model

// ReactionMap 表情反应集合：符号 -> 反应者身份列表
// 语义是集合成员而不是计数器：同一身份在同一符号下最多出现一次
// 约束：任何符号下的身份列表不允许为空，移除最后一个身份时整个键一并删除

type ReactionMap map[string][]string

// Toggle 切换identity对symbol的反应，返回新的ReactionMap（纯函数，不修改原值）
// 已存在则移除（集合为空时删除symbol键），不存在则添加
func (r ReactionMap) Toggle(symbol, identity string) ReactionMap {
	next := r.Clone()

	identities, ok := next[symbol]
	if !ok {
		next[symbol] = []string{identity}
		return next
	}

	// 已有反应则移除
	for i, id := range identities {
		if id == identity {
			identities = append(identities[:i], identities[i+1:]...)
			if len(identities) == 0 {
				// 空集合立即剪除
				delete(next, symbol)
			} else {
				next[symbol] = identities
			}
			return next
		}
	}

	next[symbol] = append(identities, identity)
	return next
}

// Has 判断identity是否已对symbol做出反应
func (r ReactionMap) Has(symbol, identity string) bool {
	for _, id := range r[symbol] {
		if id == identity {
			return true
		}
	}
	return false
}

// Count symbol下的反应人数
func (r ReactionMap) Count(symbol string) int {
	return len(r[symbol])
}

// Clone 深拷贝
func (r ReactionMap) Clone() ReactionMap {
	next := make(ReactionMap, len(r))
	for symbol, identities := range r {
		copied := make([]string, len(identities))
		copy(copied, identities)
		next[symbol] = copied
	}
	return next
}
