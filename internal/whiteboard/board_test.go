package whiteboard_test

import (
	"testing"

	"collaborative-whiteboard/internal/whiteboard"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode 是测试用的渲染节点：位置可动，包围盒跟随位置平移。
type fakeNode struct {
	x, y          float64
	width, height float64
	placement     whiteboard.Placement
}

func (n *fakeNode) Position() (float64, float64) { return n.x, n.y }
func (n *fakeNode) MoveBy(dx, dy float64)        { n.x += dx; n.y += dy }
func (n *fakeNode) Transform() whiteboard.Placement {
	p := n.placement
	p.X, p.Y = n.x, n.y
	return p
}
func (n *fakeNode) ClientRect() whiteboard.Rect {
	return whiteboard.Rect{X: n.x, Y: n.y, Width: n.width, Height: n.height}
}

type fakeStage struct {
	nodes map[string]*fakeNode
}

func newFakeStage() *fakeStage {
	return &fakeStage{nodes: make(map[string]*fakeNode)}
}

func (s *fakeStage) Node(id string) whiteboard.Node {
	node, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return node
}

func (s *fakeStage) place(id string, x, y, w, h float64) *fakeNode {
	node := &fakeNode{x: x, y: y, width: w, height: h}
	s.nodes[id] = node
	return node
}

func newTestBoard(t *testing.T) (*whiteboard.Board, *whiteboard.MemDoc, *fakeStage) {
	t.Helper()
	doc := whiteboard.NewMemDoc()
	stage := newFakeStage()
	board := whiteboard.NewBoard(doc, stage)
	t.Cleanup(board.Close)
	return board, doc, stage
}

func TestBoard_StrokeLifecycle(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board.BeginStroke(whiteboard.ToolPen, "#ff0000", 5, 10, 20)
	board.ExtendStroke(11, 21)
	board.ExtendStroke(12, 22)
	board.EndStroke()

	lines := board.Lines()
	require.Len(t, lines, 1)
	line := lines[0]
	assert.NotEmpty(t, line.ID)
	assert.Equal(t, whiteboard.ToolPen, line.Tool)
	assert.Equal(t, "#ff0000", line.Color)
	assert.Equal(t, 5.0, line.StrokeWidth)
	assert.Equal(t, []float64{10, 20, 11, 21, 12, 22}, line.Points)
	assert.Equal(t, 1.0, line.ScaleX, "新笔画缩放应为 1")
	assert.Equal(t, 1.0, line.ScaleY)

	// 结束后的坐标不再进入任何笔画
	board.ExtendStroke(99, 99)
	assert.Equal(t, []float64{10, 20, 11, 21, 12, 22}, board.Lines()[0].Points)
}

func TestBoard_EraserStoredAsBlackStroke(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board.BeginStroke(whiteboard.ToolEraser, "#ff0000", 20, 0, 0)
	board.EndStroke()

	require.Len(t, board.Lines(), 1)
	assert.Equal(t, whiteboard.ToolEraser, board.Lines()[0].Tool)
	assert.Equal(t, "#000000", board.Lines()[0].Color, "橡皮擦笔画固定存为黑色")
}

func TestBoard_AddImage(t *testing.T) {
	board, _, _ := newTestBoard(t)

	id := board.AddImage("data:image/png;base64,xyz")

	require.NotEmpty(t, id)
	images := board.Images()
	require.Len(t, images, 1)
	assert.Equal(t, id, images[0].ID)
	assert.Equal(t, 200.0, images[0].Width)
	assert.Equal(t, 200.0, images[0].Height)
}

func TestBoard_ClickSelection(t *testing.T) {
	board, _, _ := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")

	// 普通点击：选区收缩为单个对象
	board.Click(a, false)
	assert.Equal(t, []string{a}, board.SelectedIDs())
	board.Click(b, false)
	assert.Equal(t, []string{b}, board.SelectedIDs())

	// 修饰键点击：增删成员
	board.Click(a, true)
	assert.Len(t, board.SelectedIDs(), 2)
	board.Click(b, true)
	assert.Equal(t, []string{a}, board.SelectedIDs())

	board.ClearSelection()
	assert.Empty(t, board.SelectedIDs())
}

func TestBoard_RotationOnlyForSingleSelection(t *testing.T) {
	board, _, _ := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")

	board.Click(a, false)
	assert.True(t, board.RotationEnabled(), "单选时应允许旋转")

	board.Click(b, true)
	assert.False(t, board.RotationEnabled(), "多选时应禁用旋转")

	board.ClearSelection()
	assert.False(t, board.RotationEnabled())
}

func TestBoard_Marquee(t *testing.T) {
	// Arrange: 三个对象，两个落在框里
	board, _, stage := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")
	c := board.AddImage("c")
	stage.place(a, 0, 0, 10, 10)
	stage.place(b, 50, 50, 10, 10)
	stage.place(c, 500, 500, 10, 10)

	// Act: 反向拖拽也应得到规范化矩形
	board.BeginMarquee(70, 70, false)
	board.MoveMarquee(-5, -5)
	rect, active := board.MarqueeRect()
	require.True(t, active)
	assert.Equal(t, whiteboard.Rect{X: -5, Y: -5, Width: 75, Height: 75}, rect)
	board.EndMarquee()

	// Assert
	assert.ElementsMatch(t, []string{a, b}, board.SelectedIDs())
	_, active = board.MarqueeRect()
	assert.False(t, active, "结束后不应再有框选矩形")
}

func TestBoard_MarqueeAdditive(t *testing.T) {
	board, _, stage := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")
	stage.place(a, 0, 0, 10, 10)
	stage.place(b, 100, 100, 10, 10)

	board.Click(a, false)

	// 增量框选保留现有选区
	board.BeginMarquee(95, 95, true)
	board.MoveMarquee(115, 115)
	board.EndMarquee()
	assert.ElementsMatch(t, []string{a, b}, board.SelectedIDs())

	// 非增量框选先清空
	board.BeginMarquee(95, 95, false)
	board.MoveMarquee(115, 115)
	board.EndMarquee()
	assert.Equal(t, []string{b}, board.SelectedIDs())
}

func TestBoard_SelectionBounds(t *testing.T) {
	board, _, stage := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")
	stage.place(a, 0, 0, 10, 10)
	stage.place(b, 20, 20, 10, 10)

	_, ok := board.SelectionBounds()
	assert.False(t, ok, "空选区没有包围盒")

	board.Click(a, false)
	board.Click(b, true)
	bounds, ok := board.SelectionBounds()
	require.True(t, ok)
	assert.Equal(t, whiteboard.Rect{X: 0, Y: 0, Width: 30, Height: 30}, bounds)
}

func TestBoard_GroupDragCommitsOnceAtEnd(t *testing.T) {
	// Arrange
	board, doc, stage := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")
	stage.place(a, 0, 0, 10, 10)
	stage.place(b, 100, 0, 10, 10)
	board.Click(a, false)
	board.Click(b, true)

	notified := 0
	cancel := doc.Subscribe(func() { notified++ })
	defer cancel()

	// Act: 拖动中间不产生文档事务
	board.BeginGroupDrag(5, 5)
	board.DragGroupTo(15, 10)
	board.DragGroupTo(25, 25)
	assert.Zero(t, notified, "拖动过程不应写文档")

	// 视觉位置已更新
	x, y := stage.nodes[a].Position()
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 20.0, y)

	board.EndGroupDrag()

	// Assert: 结束时一个事务提交全部位置
	assert.Equal(t, 1, notified, "整次拖动应构成一个事务")
	moved := make(map[string]whiteboard.Image)
	for _, img := range board.Images() {
		moved[img.ID] = img
	}
	assert.Equal(t, 20.0, moved[a].X)
	assert.Equal(t, 20.0, moved[a].Y)
	assert.Equal(t, 120.0, moved[b].X)

	// 一步撤销恢复两个对象的位置
	require.True(t, board.Undo())
	for _, img := range board.Images() {
		assert.Equal(t, 0.0, img.X, "Undo 应一步恢复整组位置")
	}
}

func TestBoard_CommitTransform(t *testing.T) {
	board, _, _ := newTestBoard(t)
	id := board.AddImage("a")

	board.CommitTransform(id, whiteboard.Placement{X: 7, Y: 8, ScaleX: 2, ScaleY: 3, Rotation: 45})

	img := board.Images()[0]
	assert.Equal(t, 7.0, img.X)
	assert.Equal(t, 8.0, img.Y)
	assert.Equal(t, 2.0, img.ScaleX)
	assert.Equal(t, 3.0, img.ScaleY)
	assert.Equal(t, 45.0, img.Rotation)

	// 未知对象：无事发生
	board.CommitTransform("ghost", whiteboard.Placement{X: 1})
	assert.Len(t, board.Images(), 1)
}

func TestBoard_DeleteAndSelectionPruning(t *testing.T) {
	board, _, _ := newTestBoard(t)
	board.BeginStroke(whiteboard.ToolPen, "#000", 1, 0, 0)
	board.EndStroke()
	lineID := board.Lines()[0].ID
	imgID := board.AddImage("a")

	board.Click(lineID, false)
	board.Click(imgID, true)

	board.Delete(lineID)
	assert.Empty(t, board.Lines())
	assert.Equal(t, []string{imgID}, board.SelectedIDs(), "被删对象应从选区剔除")

	// 不存在的 ID：无事发生
	board.Delete("ghost")
	assert.Len(t, board.Images(), 1)
}

func TestBoard_DeleteSelection(t *testing.T) {
	board, _, _ := newTestBoard(t)
	a := board.AddImage("a")
	b := board.AddImage("b")
	c := board.AddImage("c")

	board.Click(a, false)
	board.Click(c, true)
	board.DeleteSelection()

	require.Len(t, board.Images(), 1)
	assert.Equal(t, b, board.Images()[0].ID)
	assert.Empty(t, board.SelectedIDs())
}

func TestBoard_CopyPaste(t *testing.T) {
	// Arrange: 选中一条笔画和一张图片
	board, _, _ := newTestBoard(t)
	board.BeginStroke(whiteboard.ToolPen, "#123456", 3, 1, 2)
	board.ExtendStroke(3, 4)
	board.EndStroke()
	lineID := board.Lines()[0].ID
	imgID := board.AddImage("pic")
	board.CommitTransform(imgID, whiteboard.Placement{X: 50, Y: 60, ScaleX: 1, ScaleY: 1})

	board.Click(lineID, false)
	board.Click(imgID, true)
	board.Copy()

	// Act
	board.Paste()

	// Assert: 多出一条笔画和一张图片，新 ID，整体偏移 20
	require.Len(t, board.Lines(), 2)
	require.Len(t, board.Images(), 2)

	var pastedLine whiteboard.Line
	for _, l := range board.Lines() {
		if l.ID != lineID {
			pastedLine = l
		}
	}
	require.NotEmpty(t, pastedLine.ID)
	assert.NotEqual(t, lineID, pastedLine.ID, "粘贴对象应有新 ID")
	assert.Equal(t, []float64{1, 2, 3, 4}, pastedLine.Points, "笔画内容应被复制")
	assert.Equal(t, "#123456", pastedLine.Color)
	assert.Equal(t, 20.0, pastedLine.X)
	assert.Equal(t, 20.0, pastedLine.Y)

	var pastedImg whiteboard.Image
	for _, im := range board.Images() {
		if im.ID != imgID {
			pastedImg = im
		}
	}
	assert.Equal(t, 70.0, pastedImg.X)
	assert.Equal(t, 80.0, pastedImg.Y)

	// 新对象成为当前选区
	assert.ElementsMatch(t, []string{pastedLine.ID, pastedImg.ID}, board.SelectedIDs())
}

func TestBoard_CopyEmptySelectionKeepsClipboard(t *testing.T) {
	board, _, _ := newTestBoard(t)
	a := board.AddImage("a")

	board.Click(a, false)
	board.Copy()
	board.ClearSelection()

	// 空选区时的复制不应清空剪贴板
	board.Copy()
	board.Paste()

	assert.Len(t, board.Images(), 2, "粘贴应使用此前复制的内容")
}

func TestBoard_PasteTwiceCreatesIndependentCopies(t *testing.T) {
	board, _, _ := newTestBoard(t)
	a := board.AddImage("a")
	board.Click(a, false)
	board.Copy()

	board.Paste()
	board.Paste()

	require.Len(t, board.Images(), 3)
	ids := map[string]bool{}
	for _, im := range board.Images() {
		ids[im.ID] = true
	}
	assert.Len(t, ids, 3, "每次粘贴都应生成新 ID")
}

func TestBoard_UndoSkipsRemoteEdits(t *testing.T) {
	// 本地画一笔，远端画一笔；Undo 只撤掉本地那笔
	board, doc, _ := newTestBoard(t)
	board.BeginStroke(whiteboard.ToolPen, "#000", 1, 0, 0)
	board.EndStroke()

	doc.TransactAs(whiteboard.OriginRemote, func() {
		doc.Container("lines").Push(map[string]any{
			"id": "remote-line", "points": []float64{5, 5}, "tool": "pen",
			"color": "#fff", "strokeWidth": 1.0,
			"x": 0.0, "y": 0.0, "scaleX": 1.0, "scaleY": 1.0, "rotation": 0.0,
		})
	})
	require.Len(t, board.Lines(), 2)

	require.True(t, board.Undo())
	require.Len(t, board.Lines(), 1)
	assert.Equal(t, "remote-line", board.Lines()[0].ID, "远端笔画应保留")
	assert.False(t, board.Undo(), "远端事务不应可撤销")

	require.True(t, board.Redo())
	assert.Len(t, board.Lines(), 2)
}

func TestBoard_Clear(t *testing.T) {
	board, doc, _ := newTestBoard(t)
	board.BeginStroke(whiteboard.ToolPen, "#000", 1, 0, 0)
	board.EndStroke()
	a := board.AddImage("a")
	board.Click(a, false)

	notified := 0
	cancel := doc.Subscribe(func() { notified++ })
	defer cancel()

	board.Clear()

	assert.Empty(t, board.Lines())
	assert.Empty(t, board.Images())
	assert.Empty(t, board.SelectedIDs())
	assert.Equal(t, 1, notified, "清空应是单个事务")

	// 一步撤销恢复整块白板
	require.True(t, board.Undo())
	assert.Len(t, board.Lines(), 1)
	assert.Len(t, board.Images(), 1)
}

func TestBoard_RemoteEditsRefreshProjection(t *testing.T) {
	board, doc, _ := newTestBoard(t)

	doc.TransactAs(whiteboard.OriginRemote, func() {
		doc.Container("images").Push(map[string]any{
			"id": "r1", "src": "pic", "width": 200.0, "height": 200.0,
			"x": 1.0, "y": 2.0,
		})
	})

	images := board.Images()
	require.Len(t, images, 1)
	assert.Equal(t, "r1", images[0].ID)
	assert.Equal(t, 1.0, images[0].ScaleX, "缺失的缩放字段应按 1 处理")
	assert.Equal(t, 1.0, images[0].ScaleY)
}
