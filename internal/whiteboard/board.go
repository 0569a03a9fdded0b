package whiteboard

import (
	"sort"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
)

const (
	containerLines  = "lines"
	containerImages = "images"

	eraserColor   = "#000000"
	imageSize     = 200.0
	pasteOffset   = 20.0
	defaultScaleV = 1.0
)

// clipEntry 是剪贴板里一个对象的字段快照，与文档解耦。
type clipEntry struct {
	container string
	fields    map[string]any
}

// Board 是白板的本地投影：把复制文档的容器内容投影成
// 普通的 Line/Image 记录，并承载选择、框选、整组变换、
// 剪贴板与撤销等纯本地交互。所有方法都要求在文档所在的
// goroutine 上调用。
type Board struct {
	doc   Doc
	stage Stage

	linesC  Container
	imagesC Container
	undo    UndoManager
	unsub   func()

	lines  []Line
	images []Image

	selected map[string]bool

	// 进行中的笔画
	stroke       Object
	strokePoints []float64

	// 进行中的框选
	marqueeActive   bool
	marqueeAdditive bool
	marqueeStartX   float64
	marqueeStartY   float64
	marqueeX        float64
	marqueeY        float64

	// 进行中的整组拖动
	dragActive bool
	dragStartX float64
	dragStartY float64
	dragLastX  float64
	dragLastY  float64

	clipboard []clipEntry
}

// NewBoard 把 doc 的 lines/images 容器投影到一块新白板上。
// stage 可以为 nil，此时依赖渲染节点的操作（框选命中、选区包围盒、
// 整组拖动）退化为无命中。
func NewBoard(doc Doc, stage Stage) *Board {
	b := &Board{
		doc:      doc,
		stage:    stage,
		linesC:   doc.Container(containerLines),
		imagesC:  doc.Container(containerImages),
		undo:     doc.UndoManager(containerLines, containerImages),
		selected: make(map[string]bool),
	}
	b.unsub = doc.Subscribe(b.refresh)
	b.refresh()
	return b
}

// Close 取消文档订阅。
func (b *Board) Close() {
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
}

// Lines 返回当前投影出的全部笔画。
func (b *Board) Lines() []Line {
	return b.lines
}

// Images 返回当前投影出的全部图片。
func (b *Board) Images() []Image {
	return b.images
}

// refresh 由文档变更通知驱动，重建投影并剔除已消失对象的选中态。
func (b *Board) refresh() {
	b.lines = b.lines[:0]
	for i := 0; i < b.linesC.Len(); i++ {
		b.lines = append(b.lines, decodeLine(b.linesC.At(i)))
	}
	b.images = b.images[:0]
	for i := 0; i < b.imagesC.Len(); i++ {
		b.images = append(b.images, decodeImage(b.imagesC.At(i)))
	}

	alive := make(map[string]bool, len(b.lines)+len(b.images))
	for _, l := range b.lines {
		alive[l.ID] = true
	}
	for _, im := range b.images {
		alive[im.ID] = true
	}
	for id := range b.selected {
		if !alive[id] {
			delete(b.selected, id)
		}
	}
}

// --- 笔画 ---

// BeginStroke 开始一条新笔画并立即落进文档。橡皮擦按约定
// 存成黑色笔画，由渲染层以擦除混合模式绘制。
func (b *Board) BeginStroke(tool Tool, color string, strokeWidth float64, x, y float64) {
	if tool == ToolEraser {
		color = eraserColor
	}
	b.strokePoints = []float64{x, y}
	b.doc.Transact(func() {
		b.stroke = b.linesC.Push(map[string]any{
			"id":          uuid.New().String(),
			"points":      append([]float64(nil), b.strokePoints...),
			"tool":        string(tool),
			"color":       color,
			"strokeWidth": strokeWidth,
			"x":           0.0,
			"y":           0.0,
			"scaleX":      defaultScaleV,
			"scaleY":      defaultScaleV,
			"rotation":    0.0,
		})
	})
}

// ExtendStroke 向进行中的笔画追加一个采样点。
func (b *Board) ExtendStroke(x, y float64) {
	if b.stroke == nil {
		return
	}
	b.strokePoints = append(b.strokePoints, x, y)
	points := append([]float64(nil), b.strokePoints...)
	b.doc.Transact(func() {
		b.stroke.Set("points", points)
	})
}

// EndStroke 结束进行中的笔画。
func (b *Board) EndStroke() {
	b.stroke = nil
	b.strokePoints = nil
}

// --- 图片 ---

// AddImage 以固定初始尺寸把一张图片加入文档，并返回其 ID。
func (b *Board) AddImage(src string) string {
	id := uuid.New().String()
	b.doc.Transact(func() {
		b.imagesC.Push(map[string]any{
			"id":       id,
			"src":      src,
			"width":    imageSize,
			"height":   imageSize,
			"x":        0.0,
			"y":        0.0,
			"scaleX":   defaultScaleV,
			"scaleY":   defaultScaleV,
			"rotation": 0.0,
		})
	})
	return id
}

// --- 选择 ---

// Click 处理对单个对象的点击。toggle 为真（按住修饰键）时在
// 现有选区里增删该对象，否则选区收缩为只含该对象。
func (b *Board) Click(id string, toggle bool) {
	if toggle {
		if b.selected[id] {
			delete(b.selected, id)
		} else {
			b.selected[id] = true
		}
		return
	}
	maps.Clear(b.selected)
	b.selected[id] = true
}

// ClearSelection 清空选区，对应点击空白处。
func (b *Board) ClearSelection() {
	maps.Clear(b.selected)
}

// SelectedIDs 返回按字典序排序的选中对象 ID。
func (b *Board) SelectedIDs() []string {
	ids := maps.Keys(b.selected)
	sort.Strings(ids)
	return ids
}

// IsSelected 报告 id 是否在选区内。
func (b *Board) IsSelected(id string) bool {
	return b.selected[id]
}

// RotationEnabled 报告变换手柄是否应提供旋转。
// 多选时旋转语义含混，只在恰好选中一个对象时开启。
func (b *Board) RotationEnabled() bool {
	return len(b.selected) == 1
}

// SelectionBounds 返回覆盖全部选中渲染节点的最小矩形。
// 选区为空或没有任何节点已渲染时返回 false。
func (b *Board) SelectionBounds() (Rect, bool) {
	if b.stage == nil {
		return Rect{}, false
	}
	var bounds Rect
	found := false
	for id := range b.selected {
		node := b.stage.Node(id)
		if node == nil {
			continue
		}
		r := node.ClientRect()
		if !found {
			bounds = r
			found = true
		} else {
			bounds = bounds.Union(r)
		}
	}
	return bounds, found
}

// --- 框选 ---

// BeginMarquee 从 (x, y) 开始一次框选。additive 为真时保留现有选区。
func (b *Board) BeginMarquee(x, y float64, additive bool) {
	b.marqueeActive = true
	b.marqueeAdditive = additive
	b.marqueeStartX, b.marqueeStartY = x, y
	b.marqueeX, b.marqueeY = x, y
	if !additive {
		maps.Clear(b.selected)
	}
}

// MoveMarquee 更新框选的活动角。
func (b *Board) MoveMarquee(x, y float64) {
	if !b.marqueeActive {
		return
	}
	b.marqueeX, b.marqueeY = x, y
}

// MarqueeRect 返回进行中框选的规范化矩形。
func (b *Board) MarqueeRect() (Rect, bool) {
	if !b.marqueeActive {
		return Rect{}, false
	}
	return normalizedRect(b.marqueeStartX, b.marqueeStartY, b.marqueeX, b.marqueeY), true
}

// EndMarquee 结束框选，把矩形与渲染节点包围盒相交的对象并入选区。
func (b *Board) EndMarquee() {
	if !b.marqueeActive {
		return
	}
	rect := normalizedRect(b.marqueeStartX, b.marqueeStartY, b.marqueeX, b.marqueeY)
	b.marqueeActive = false

	if b.stage == nil {
		return
	}
	hit := func(id string) {
		node := b.stage.Node(id)
		if node == nil {
			return
		}
		if rect.Intersects(node.ClientRect()) {
			b.selected[id] = true
		}
	}
	for _, l := range b.lines {
		hit(l.ID)
	}
	for _, im := range b.images {
		hit(im.ID)
	}
}

// --- 整组拖动 ---

// BeginGroupDrag 从 (x, y) 开始拖动整个选区。
func (b *Board) BeginGroupDrag(x, y float64) {
	if len(b.selected) == 0 {
		return
	}
	b.dragActive = true
	b.dragStartX, b.dragStartY = x, y
	b.dragLastX, b.dragLastY = x, y
}

// DragGroupTo 把选区视觉上移到指针当前位置。拖动过程只改
// 渲染节点，不写文档，避免把每个中间位置都广播出去。
func (b *Board) DragGroupTo(x, y float64) {
	if !b.dragActive {
		return
	}
	dx, dy := x-b.dragLastX, y-b.dragLastY
	b.dragLastX, b.dragLastY = x, y
	if b.stage == nil {
		return
	}
	for id := range b.selected {
		if node := b.stage.Node(id); node != nil {
			node.MoveBy(dx, dy)
		}
	}
}

// EndGroupDrag 结束拖动，把所有选中节点的最终位置在一个事务里
// 写回文档，整次拖动因此构成一步撤销。
func (b *Board) EndGroupDrag() {
	if !b.dragActive {
		return
	}
	b.dragActive = false
	if b.stage == nil {
		return
	}
	b.doc.Transact(func() {
		for id := range b.selected {
			node := b.stage.Node(id)
			if node == nil {
				continue
			}
			obj, _ := b.findObject(id)
			if obj == nil {
				continue
			}
			x, y := node.Position()
			obj.Set("x", x)
			obj.Set("y", y)
		}
	})
}

// --- 变换 ---

// CommitTransform 把一次缩放/旋转交互的最终摆放写回文档。
func (b *Board) CommitTransform(id string, p Placement) {
	obj, _ := b.findObject(id)
	if obj == nil {
		return
	}
	b.doc.Transact(func() {
		obj.Set("x", p.X)
		obj.Set("y", p.Y)
		obj.Set("scaleX", p.ScaleX)
		obj.Set("scaleY", p.ScaleY)
		obj.Set("rotation", p.Rotation)
	})
}

// --- 删除 ---

// Delete 从文档中删除一个对象，对象不存在时什么也不做。
func (b *Board) Delete(id string) {
	cont, index := b.findIndex(id)
	if cont == nil {
		return
	}
	b.doc.Transact(func() {
		cont.Delete(index)
	})
}

// DeleteSelection 删除选区里的全部对象。
func (b *Board) DeleteSelection() {
	for _, id := range b.SelectedIDs() {
		b.Delete(id)
	}
}

// --- 剪贴板 ---

// Copy 把当前选区的字段快照存入剪贴板。选区为空时保留旧内容，
// 这样误触复制不会清掉已复制的对象。
func (b *Board) Copy() {
	if len(b.selected) == 0 {
		return
	}
	entries := make([]clipEntry, 0, len(b.selected))
	for _, id := range b.SelectedIDs() {
		obj, cont := b.findObject(id)
		if obj == nil {
			continue
		}
		entries = append(entries, clipEntry{container: cont, fields: snapshotFields(obj)})
	}
	b.clipboard = entries
}

// Paste 把剪贴板内容以新 ID、右下偏移粘贴进文档，
// 全部粘贴在一个事务里完成，并让新对象成为当前选区。
func (b *Board) Paste() {
	if len(b.clipboard) == 0 {
		return
	}
	newIDs := make([]string, 0, len(b.clipboard))
	b.doc.Transact(func() {
		for _, entry := range b.clipboard {
			fields := make(map[string]any, len(entry.fields))
			for k, v := range entry.fields {
				fields[k] = v
			}
			id := uuid.New().String()
			fields["id"] = id
			fields["x"] = asFloat(fields["x"], 0) + pasteOffset
			fields["y"] = asFloat(fields["y"], 0) + pasteOffset
			if entry.container == containerImages {
				b.imagesC.Push(fields)
			} else {
				b.linesC.Push(fields)
			}
			newIDs = append(newIDs, id)
		}
	})
	maps.Clear(b.selected)
	for _, id := range newIDs {
		b.selected[id] = true
	}
}

// --- 历史与整板操作 ---

// Undo 回退最近一步本地编辑。
func (b *Board) Undo() bool {
	return b.undo.Undo()
}

// Redo 重放最近一步被撤销的本地编辑。
func (b *Board) Redo() bool {
	return b.undo.Redo()
}

// Clear 在一个事务里清空整块白板。
func (b *Board) Clear() {
	b.doc.Transact(func() {
		for b.linesC.Len() > 0 {
			b.linesC.Delete(b.linesC.Len() - 1)
		}
		for b.imagesC.Len() > 0 {
			b.imagesC.Delete(b.imagesC.Len() - 1)
		}
	})
	maps.Clear(b.selected)
}

// --- 查找与解码 ---

func (b *Board) findIndex(id string) (Container, int) {
	for i := 0; i < b.linesC.Len(); i++ {
		if objectID(b.linesC.At(i)) == id {
			return b.linesC, i
		}
	}
	for i := 0; i < b.imagesC.Len(); i++ {
		if objectID(b.imagesC.At(i)) == id {
			return b.imagesC, i
		}
	}
	return nil, -1
}

func (b *Board) findObject(id string) (Object, string) {
	cont, index := b.findIndex(id)
	if cont == nil {
		return nil, ""
	}
	name := containerLines
	if cont == b.imagesC {
		name = containerImages
	}
	return cont.At(index), name
}

func objectID(obj Object) string {
	return asString(obj, "id")
}

func decodeLine(obj Object) Line {
	return Line{
		ID:          asString(obj, "id"),
		Points:      asFloats(obj, "points"),
		Tool:        Tool(asString(obj, "tool")),
		Color:       asString(obj, "color"),
		StrokeWidth: fieldFloat(obj, "strokeWidth", 0),
		Placement:   decodePlacement(obj),
	}
}

func decodeImage(obj Object) Image {
	return Image{
		ID:        asString(obj, "id"),
		Src:       asString(obj, "src"),
		Width:     fieldFloat(obj, "width", 0),
		Height:    fieldFloat(obj, "height", 0),
		Placement: decodePlacement(obj),
	}
}

// decodePlacement 读取摆放字段，缺失的缩放按 1 处理。
func decodePlacement(obj Object) Placement {
	return Placement{
		X:        fieldFloat(obj, "x", 0),
		Y:        fieldFloat(obj, "y", 0),
		ScaleX:   fieldFloat(obj, "scaleX", defaultScaleV),
		ScaleY:   fieldFloat(obj, "scaleY", defaultScaleV),
		Rotation: fieldFloat(obj, "rotation", 0),
	}
}

func snapshotFields(obj Object) map[string]any {
	fields := make(map[string]any)
	for _, key := range []string{
		"id", "points", "tool", "color", "strokeWidth",
		"src", "width", "height",
		"x", "y", "scaleX", "scaleY", "rotation",
	} {
		v, ok := obj.Get(key)
		if !ok {
			continue
		}
		if points, isSlice := v.([]float64); isSlice {
			v = append([]float64(nil), points...)
		}
		fields[key] = v
	}
	return fields
}

func asString(obj Object, key string) string {
	v, ok := obj.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func asFloats(obj Object, key string) []float64 {
	v, ok := obj.Get(key)
	if !ok {
		return nil
	}
	points, _ := v.([]float64)
	return append([]float64(nil), points...)
}

func fieldFloat(obj Object, key string, def float64) float64 {
	v, ok := obj.Get(key)
	if !ok {
		return def
	}
	return asFloat(v, def)
}

func asFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func normalizedRect(x0, y0, x1, y1 float64) Rect {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
