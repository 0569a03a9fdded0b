package whiteboard

// Tool 是画笔工具类型。
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// Placement 是所有可绘制对象共享的仿射摆放：平移、缩放、旋转。
// 摆放总是就地修改而不是替换对象，使位置编辑与内容编辑可以独立合并。
type Placement struct {
	X        float64
	Y        float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
}

// Line 是一条笔画在本地投影中的普通记录。
type Line struct {
	ID          string
	Points      []float64 // 扁平的 x0,y0,x1,y1,... 序列
	Tool        Tool
	Color       string
	StrokeWidth float64
	Placement
}

// Image 是一张图片在本地投影中的普通记录。
type Image struct {
	ID     string
	Src    string
	Width  float64
	Height float64
	Placement
}

// Rect 是客户端坐标系下的矩形。
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Intersects 报告两个矩形是否相交。
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && r.X+r.Width > o.X &&
		r.Y < o.Y+o.Height && r.Y+r.Height > o.Y
}

// Union 返回能同时覆盖两个矩形的最小矩形。
func (r Rect) Union(o Rect) Rect {
	minX := r.X
	if o.X < minX {
		minX = o.X
	}
	minY := r.Y
	if o.Y < minY {
		minY = o.Y
	}
	maxX := r.X + r.Width
	if o.X+o.Width > maxX {
		maxX = o.X + o.Width
	}
	maxY := r.Y + r.Height
	if o.Y+o.Height > maxY {
		maxY = o.Y + o.Height
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
