package whiteboard

// MemDoc 是 Doc 契约的进程内参考实现，用于离线单机运行和测试。
// 与投影层的执行模型一致（单线程协作式），它被限定在一个 goroutine
// 内使用，不做内部加锁。
//
// 事务模型：顶层事务结束时才触发一次订阅通知；嵌套事务并入外层。
// 每个事务记录一组逆操作，按相反顺序回放即可精确还原，
// 只有本地来源的事务进入撤销历史。
type MemDoc struct {
	containers map[string]*memContainer
	subs       map[int]func()
	nextSub    int

	cur   *txnRecord
	depth int

	undoStack []*txnRecord
	redoStack []*txnRecord
}

// originHistory 是撤销/重做回放内部使用的来源，不进入撤销历史。
const originHistory Origin = "history"

type txnRecord struct {
	origin  Origin
	inverse []func(d *MemDoc)
	touched map[string]bool
	changed bool
}

// NewMemDoc 创建空文档。
func NewMemDoc() *MemDoc {
	return &MemDoc{
		containers: make(map[string]*memContainer),
		subs:       make(map[int]func()),
	}
}

// Container 返回命名容器，不存在时创建。
func (d *MemDoc) Container(name string) Container {
	c, ok := d.containers[name]
	if !ok {
		c = &memContainer{doc: d, name: name}
		d.containers[name] = c
	}
	return c
}

// Transact 以本地来源执行事务。
func (d *MemDoc) Transact(fn func()) {
	d.TransactAs(OriginLocal, fn)
}

// TransactAs 以指定来源执行事务。
func (d *MemDoc) TransactAs(origin Origin, fn func()) {
	d.begin(origin)
	fn()
	d.end()
}

// Subscribe 注册深度变更回调，每个产生变更的事务触发一次。
func (d *MemDoc) Subscribe(fn func()) func() {
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn
	return func() {
		delete(d.subs, id)
	}
}

// UndoManager 返回作用域为给定容器的撤销管理器。
func (d *MemDoc) UndoManager(containers ...string) UndoManager {
	scope := make(map[string]bool, len(containers))
	for _, name := range containers {
		scope[name] = true
	}
	return &memUndoManager{doc: d, scope: scope}
}

func (d *MemDoc) begin(origin Origin) {
	d.depth++
	if d.depth == 1 {
		d.cur = &txnRecord{origin: origin, touched: make(map[string]bool)}
	}
}

func (d *MemDoc) end() {
	d.depth--
	if d.depth > 0 {
		return
	}
	rec := d.cur
	d.cur = nil
	if rec == nil || !rec.changed {
		return
	}
	if rec.origin == OriginLocal {
		d.undoStack = append(d.undoStack, rec)
		// 新的本地编辑使重做历史失效
		d.redoStack = nil
	}
	for _, fn := range d.subs {
		fn()
	}
}

// ensureTxn 保证变更发生在事务内；裸调用会被包进一个隐式本地事务。
func (d *MemDoc) ensureTxn(fn func()) {
	if d.cur != nil {
		fn()
		return
	}
	d.TransactAs(OriginLocal, fn)
}

// record 在当前事务里登记一条逆操作。
func (d *MemDoc) record(container string, inv func(d *MemDoc)) {
	d.cur.inverse = append(d.cur.inverse, inv)
	d.cur.touched[container] = true
	d.cur.changed = true
}

// replay 在一个回放事务里按相反顺序执行 rec 的逆操作，
// 回放期间登记的逆操作恰好构成相反方向的记录并被返回。
func (d *MemDoc) replay(rec *txnRecord) *txnRecord {
	d.begin(originHistory)
	for i := len(rec.inverse) - 1; i >= 0; i-- {
		rec.inverse[i](d)
	}
	opp := d.cur
	d.end()
	opp.origin = rec.origin
	return opp
}

// --- 容器与对象 ---

type memContainer struct {
	doc     *MemDoc
	name    string
	objects []*memObject
}

func (c *memContainer) Len() int {
	return len(c.objects)
}

func (c *memContainer) At(index int) Object {
	return c.objects[index]
}

// Push 在容器尾部创建一个新对象。fields 会被拷贝。
func (c *memContainer) Push(fields map[string]any) Object {
	obj := &memObject{cont: c, fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		obj.fields[k] = v
	}
	c.doc.ensureTxn(func() {
		c.insertAt(len(c.objects), obj)
	})
	return obj
}

// Delete 删除 index 处的对象。
func (c *memContainer) Delete(index int) {
	c.doc.ensureTxn(func() {
		c.deleteAt(index)
	})
}

// insertAt / deleteAt 是一对内部原语，必须在事务内调用。
// 逆操作以对象身份而非记录时的下标为准：远端事务可能在回放前改动
// 容器布局，删除按身份定位、重新插入对下标做钳制，本地撤销因此
// 永远不会波及远端对象。
func (c *memContainer) insertAt(index int, obj *memObject) {
	if index > len(c.objects) {
		index = len(c.objects)
	}
	c.objects = append(c.objects, nil)
	copy(c.objects[index+1:], c.objects[index:])
	c.objects[index] = obj
	c.doc.record(c.name, func(d *MemDoc) {
		c.removeObject(obj)
	})
}

func (c *memContainer) deleteAt(index int) {
	obj := c.objects[index]
	c.objects = append(c.objects[:index], c.objects[index+1:]...)
	c.doc.record(c.name, func(d *MemDoc) {
		c.insertAt(index, obj)
	})
}

// removeObject 按身份删除对象。对象已被其他来源删除时是无害的空操作。
func (c *memContainer) removeObject(obj *memObject) {
	for i, o := range c.objects {
		if o == obj {
			c.deleteAt(i)
			return
		}
	}
}

type memObject struct {
	cont   *memContainer
	fields map[string]any
}

func (o *memObject) Get(key string) (any, bool) {
	v, ok := o.fields[key]
	return v, ok
}

func (o *memObject) Set(key string, value any) {
	d := o.cont.doc
	d.ensureTxn(func() {
		old, had := o.fields[key]
		o.fields[key] = value
		d.record(o.cont.name, func(d *MemDoc) {
			if had {
				o.Set(key, old)
			} else {
				o.unset(key)
			}
		})
	})
}

func (o *memObject) unset(key string) {
	d := o.cont.doc
	old, had := o.fields[key]
	if !had {
		return
	}
	delete(o.fields, key)
	d.record(o.cont.name, func(d *MemDoc) {
		o.Set(key, old)
	})
}

// --- 撤销管理器 ---

type memUndoManager struct {
	doc   *MemDoc
	scope map[string]bool
}

func (m *memUndoManager) inScope(rec *txnRecord) bool {
	if len(m.scope) == 0 {
		return true
	}
	for name := range rec.touched {
		if m.scope[name] {
			return true
		}
	}
	return false
}

func (m *memUndoManager) lastInScope(stack []*txnRecord) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if m.inScope(stack[i]) {
			return i
		}
	}
	return -1
}

// Undo 回退最近一个作用域内的本地事务。无可回退时返回 false。
func (m *memUndoManager) Undo() bool {
	d := m.doc
	idx := m.lastInScope(d.undoStack)
	if idx < 0 {
		return false
	}
	rec := d.undoStack[idx]
	d.undoStack = append(d.undoStack[:idx], d.undoStack[idx+1:]...)
	opp := d.replay(rec)
	d.redoStack = append(d.redoStack, opp)
	return true
}

// Redo 重放最近一个被撤销的作用域内事务。
func (m *memUndoManager) Redo() bool {
	d := m.doc
	idx := m.lastInScope(d.redoStack)
	if idx < 0 {
		return false
	}
	rec := d.redoStack[idx]
	d.redoStack = append(d.redoStack[:idx], d.redoStack[idx+1:]...)
	opp := d.replay(rec)
	d.undoStack = append(d.undoStack, opp)
	return true
}
