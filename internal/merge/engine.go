// Package merge 定义网关所消费的复制文档引擎契约。
// 合并语义（冲突消解、因果序）由引擎自己负责；
// 网关只保证被准入连接的事务按发送顺序、至多一次地进入引擎，
// 被拒绝或被过滤的事务永远不会到达这里。
package merge

import "sync"

// Document 是一个房间的共享文档。
type Document interface {
	// ApplyUpdate 将一条增量更新并入文档。
	ApplyUpdate(update []byte) error
	// State 返回可用于握手应答的完整编码状态。
	State() []byte
}

// Factory 按房间惰性创建文档实例。
type Factory func(roomID string) Document

// Log 是 Document 的进程内实现：一条只追加的更新日志，
// 状态即全部更新按接收顺序的拼接。对端自行完成真正的合并。
type Log struct {
	mu      sync.RWMutex
	updates [][]byte
	size    int
}

// NewLog 创建空的更新日志。
func NewLog() *Log {
	return &Log{}
}

// ApplyUpdate 追加一条更新。入参会被拷贝，调用方可以复用缓冲区。
func (l *Log) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return nil
	}
	cp := make([]byte, len(update))
	copy(cp, update)
	l.mu.Lock()
	l.updates = append(l.updates, cp)
	l.size += len(cp)
	l.mu.Unlock()
	return nil
}

// State 返回全部更新的拼接。
func (l *Log) State() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	state := make([]byte, 0, l.size)
	for _, u := range l.updates {
		state = append(state, u...)
	}
	return state
}

// Len 返回已接收的更新条数。
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.updates)
}
