package whiteboard

// 本文件定义投影层所消费的两个外部协作者契约：
// 复制文档引擎（Doc/Container/Object/UndoManager）和场景渲染器
// （Stage/Node）。合并语义、网络编码与像素绘制均不在本包范围内。

// Origin 标识一个事务的来源。撤销历史只收录本地来源的事务。
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Object 是容器中一个按键访问的记录。
// Set 只能在事务内调用；引擎保证一个事务内的全部写入
// 作为不可分割的单元生效，订阅者收到且仅收到一次通知。
type Object interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Container 是文档中一个有序的对象序列。
// Push 和 Delete 只能在事务内调用。
type Container interface {
	Len() int
	At(index int) Object
	Push(fields map[string]any) Object
	Delete(index int)
}

// Doc 是复制文档。
type Doc interface {
	// Container 返回命名容器，不存在时创建。
	Container(name string) Container
	// Transact 以本地来源执行一个互斥事务。
	Transact(fn func())
	// TransactAs 以指定来源执行事务，同步层用它落地远端更新。
	TransactAs(origin Origin, fn func())
	// Subscribe 深度订阅文档变更：每个产生了变更的事务触发一次回调。
	// 返回取消订阅的函数。
	Subscribe(fn func()) (cancel func())
	// UndoManager 返回只覆盖给定容器、只回退本地来源事务的撤销管理器。
	UndoManager(containers ...string) UndoManager
}

// UndoManager 是作用域受限的本地撤销历史。
// 远端对等方发起的事务永远不在本客户端的历史里。
type UndoManager interface {
	Undo() bool
	Redo() bool
}

// Node 是渲染器中一个已绘制对象的句柄。
// MoveBy 只改视觉位置，不写文档；文档写入由投影层在交互结束时统一提交。
type Node interface {
	Position() (x, y float64)
	MoveBy(dx, dy float64)
	Transform() Placement
	ClientRect() Rect
}

// Stage 是场景渲染器。
type Stage interface {
	// Node 按对象 ID 查找渲染节点，未渲染时返回 nil。
	Node(id string) Node
}
