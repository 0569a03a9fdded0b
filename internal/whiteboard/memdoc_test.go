package whiteboard_test

import (
	"testing"

	"collaborative-whiteboard/internal/whiteboard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemDoc_TransactionNotifiesOnce(t *testing.T) {
	// 一个事务不论写多少次，订阅者只收到一次通知
	doc := whiteboard.NewMemDoc()
	notified := 0
	cancel := doc.Subscribe(func() { notified++ })
	defer cancel()

	lines := doc.Container("lines")
	doc.Transact(func() {
		obj := lines.Push(map[string]any{"id": "a"})
		obj.Set("color", "#ff0000")
		obj.Set("color", "#00ff00")
		lines.Push(map[string]any{"id": "b"})
	})

	assert.Equal(t, 1, notified, "整个事务应只触发一次通知")
	assert.Equal(t, 2, lines.Len())
}

func TestMemDoc_EmptyTransactionIsSilent(t *testing.T) {
	doc := whiteboard.NewMemDoc()
	notified := 0
	cancel := doc.Subscribe(func() { notified++ })
	defer cancel()

	doc.Transact(func() {})

	assert.Zero(t, notified, "无变更的事务不应打扰订阅者")
}

func TestMemDoc_Unsubscribe(t *testing.T) {
	doc := whiteboard.NewMemDoc()
	notified := 0
	cancel := doc.Subscribe(func() { notified++ })

	doc.Transact(func() { doc.Container("lines").Push(map[string]any{"id": "a"}) })
	cancel()
	doc.Transact(func() { doc.Container("lines").Push(map[string]any{"id": "b"}) })

	assert.Equal(t, 1, notified, "取消订阅后不应再收到通知")
}

func TestMemDoc_UndoRedo(t *testing.T) {
	// Arrange: 两个本地事务
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { lines.Push(map[string]any{"id": "a"}) })
	doc.Transact(func() { lines.Push(map[string]any{"id": "b"}) })
	require.Equal(t, 2, lines.Len())

	// Act + Assert: 逐步回退
	assert.True(t, undo.Undo())
	assert.Equal(t, 1, lines.Len())
	id, _ := lines.At(0).Get("id")
	assert.Equal(t, "a", id, "后做的事务先被回退")

	assert.True(t, undo.Undo())
	assert.Equal(t, 0, lines.Len())
	assert.False(t, undo.Undo(), "历史耗尽时 Undo 返回 false")

	// 重做按相反顺序恢复
	assert.True(t, undo.Redo())
	assert.Equal(t, 1, lines.Len())
	id, _ = lines.At(0).Get("id")
	assert.Equal(t, "a", id)

	assert.True(t, undo.Redo())
	assert.Equal(t, 2, lines.Len())
	assert.False(t, undo.Redo())
}

func TestMemDoc_UndoRestoresFieldValues(t *testing.T) {
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	var obj whiteboard.Object
	doc.Transact(func() {
		obj = lines.Push(map[string]any{"id": "a", "color": "#000"})
	})
	doc.Transact(func() { obj.Set("color", "#fff") })

	require.True(t, undo.Undo())
	color, _ := obj.Get("color")
	assert.Equal(t, "#000", color, "Undo 应恢复修改前的字段值")

	require.True(t, undo.Redo())
	color, _ = obj.Get("color")
	assert.Equal(t, "#fff", color)
}

func TestMemDoc_RemoteTransactionsSkippedByUndo(t *testing.T) {
	// 撤销历史只收录本地来源的事务
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { lines.Push(map[string]any{"id": "mine"}) })
	doc.TransactAs(whiteboard.OriginRemote, func() { lines.Push(map[string]any{"id": "theirs"}) })

	require.True(t, undo.Undo())
	require.Equal(t, 1, lines.Len())
	id, _ := lines.At(0).Get("id")
	assert.Equal(t, "theirs", id, "Undo 应跳过远端事务，只回退本地编辑")

	assert.False(t, undo.Undo(), "远端事务不应出现在撤销历史里")
}

func TestMemDoc_UndoScopeFiltersContainers(t *testing.T) {
	// 作用域外的容器变更对该撤销管理器不可见
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	meta := doc.Container("meta")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { meta.Push(map[string]any{"k": "v"}) })
	doc.Transact(func() { lines.Push(map[string]any{"id": "a"}) })
	doc.Transact(func() { meta.Push(map[string]any{"k": "w"}) })

	require.True(t, undo.Undo())
	assert.Equal(t, 0, lines.Len(), "应回退 lines 的事务而非 meta 的")
	assert.Equal(t, 2, meta.Len(), "作用域外的容器不受影响")
	assert.False(t, undo.Undo())
}

func TestMemDoc_NewLocalEditClearsRedo(t *testing.T) {
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { lines.Push(map[string]any{"id": "a"}) })
	require.True(t, undo.Undo())

	// 新的本地编辑使重做失效
	doc.Transact(func() { lines.Push(map[string]any{"id": "b"}) })
	assert.False(t, undo.Redo(), "新编辑之后不应还能重做旧分支")
}

func TestMemDoc_ImplicitTransaction(t *testing.T) {
	// 事务外的裸写入被包进隐式本地事务，同样可撤销
	doc := whiteboard.NewMemDoc()
	notified := 0
	cancel := doc.Subscribe(func() { notified++ })
	defer cancel()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	lines.Push(map[string]any{"id": "a"})

	assert.Equal(t, 1, notified)
	assert.True(t, undo.Undo())
	assert.Equal(t, 0, lines.Len())
}

func TestMemDoc_UndoAfterRemoteDeleteIsHarmless(t *testing.T) {
	// 本地推入的对象被远端删除后，撤销这次推入不得崩溃，
	// 也不得改动容器里剩下的内容
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { lines.Push(map[string]any{"id": "local-a"}) })
	doc.TransactAs(whiteboard.OriginRemote, func() { lines.Delete(0) })
	require.Equal(t, 0, lines.Len())

	assert.NotPanics(t, func() { undo.Undo() })
	assert.Equal(t, 0, lines.Len(), "目标已消失的撤销应是空操作")
}

func TestMemDoc_UndoTargetsObjectNotSlot(t *testing.T) {
	// 远端对象占据了本地对象原来的下标，本地撤销不得误删它
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() { lines.Push(map[string]any{"id": "local-a"}) })
	doc.TransactAs(whiteboard.OriginRemote, func() {
		lines.Delete(0)
		lines.Push(map[string]any{"id": "remote-b"})
	})

	require.True(t, undo.Undo())
	require.Equal(t, 1, lines.Len())
	id, _ := lines.At(0).Get("id")
	assert.Equal(t, "remote-b", id, "本地撤销永远不能删除远端对象")
}

func TestMemDoc_UndoReinsertionClampsIndex(t *testing.T) {
	// 本地删除尾部对象，远端随后清空容器；撤销重新插入时
	// 记录时的下标已经越界，必须钳制而不是崩溃
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() {
		lines.Push(map[string]any{"id": "a"})
		lines.Push(map[string]any{"id": "b"})
		lines.Push(map[string]any{"id": "c"})
	})
	doc.Transact(func() { lines.Delete(2) })
	doc.TransactAs(whiteboard.OriginRemote, func() {
		lines.Delete(0)
		lines.Delete(0)
	})
	require.Equal(t, 0, lines.Len())

	assert.NotPanics(t, func() { undo.Undo() })
	require.Equal(t, 1, lines.Len())
	id, _ := lines.At(0).Get("id")
	assert.Equal(t, "c", id, "撤销删除应把对象放回容器，下标钳制到末尾")
}

func TestMemDoc_DeleteAndUndoRestoresOrder(t *testing.T) {
	doc := whiteboard.NewMemDoc()
	lines := doc.Container("lines")
	undo := doc.UndoManager("lines")

	doc.Transact(func() {
		lines.Push(map[string]any{"id": "a"})
		lines.Push(map[string]any{"id": "b"})
		lines.Push(map[string]any{"id": "c"})
	})
	doc.Transact(func() { lines.Delete(1) })

	ids := func() []string {
		out := make([]string, 0, lines.Len())
		for i := 0; i < lines.Len(); i++ {
			id, _ := lines.At(i).Get("id")
			out = append(out, id.(string))
		}
		return out
	}
	require.Equal(t, []string{"a", "c"}, ids())

	require.True(t, undo.Undo())
	assert.Equal(t, []string{"a", "b", "c"}, ids(), "Undo 应把对象放回原位置")

	require.True(t, undo.Redo())
	assert.Equal(t, []string{"a", "c"}, ids())
}
