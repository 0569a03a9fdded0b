package service

import (
	"strings"
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// CreateRoomParams 是创建房间的输入。
type CreateRoomParams struct {
	Name        string
	Credential  string // 明文加入口令；空表示不设口令
	IsPublic    *bool  // nil 时默认公开
	TimeLimit   int    // 分钟数；0 或负数表示永不过期
	MaxUsers    int
	DefaultRole domain.Role // 空时默认 editor
	OwnerID     string      // 空时默认 "anonymous"
}

// RoomRegistry 持有全部活跃房间及其过期定时器。
// 它是一个显式的有状态服务对象：房间表、定时器表和代数表
// 只能通过 Registry 的方法修改，全部在同一把锁下完成原子更新。
type RoomRegistry struct {
	mu     sync.Mutex
	rooms  map[string]*domain.Room
	timers map[string]*time.Timer
	// gens 为每个房间维护定时器代数。重新调度或取消都会递增代数，
	// 过期回调在锁内核对自己携带的代数，被取代的回调直接放弃，
	// 从而杜绝 "定时器触发与 extendTime 并发" 的先删后建竞态。
	gens     map[string]uint64
	onDelete []func(roomID string)

	// minute 是时间限制的粒度，测试中缩短以便观察过期行为。
	minute time.Duration
}

// NewRoomRegistry 创建空的房间注册表。
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:  make(map[string]*domain.Room),
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
		minute: time.Minute,
	}
}

// OnDelete 注册房间删除（显式删除或过期）后的回调，
// 用于通知网关关闭该房间的连接并丢弃文档。
func (r *RoomRegistry) OnDelete(fn func(roomID string)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onDelete = append(r.onDelete, fn)
	r.mu.Unlock()
}

// Create 创建一个新房间并按需排期过期删除。
func (r *RoomRegistry) Create(p CreateRoomParams) (*domain.Room, error) {
	if strings.TrimSpace(p.Name) == "" {
		logrus.Warn("Registry.Create: Room name is required")
		return nil, ErrInvalidInput
	}

	room := &domain.Room{
		ID:           uuid.NewString(),
		Name:         p.Name,
		OwnerID:      p.OwnerID,
		IsPublic:     true,
		DefaultRole:  domain.RoleEditor,
		MaxUsers:     p.MaxUsers,
		AdminToken:   uuid.NewString(),
		VisitorToken: uuid.NewString(),
		CreatedAt:    time.Now(),
	}
	if room.OwnerID == "" {
		room.OwnerID = "anonymous"
	}
	if p.IsPublic != nil {
		room.IsPublic = *p.IsPublic
	}
	if p.DefaultRole != "" {
		room.DefaultRole = p.DefaultRole
	}
	if p.Credential != "" {
		// 口令只保存 bcrypt 哈希，明文不落内存以外的任何地方
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Credential), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithError(err).Error("Registry.Create: Failed to hash room credential")
			return nil, ErrInternalServer
		}
		room.SecretHash = hash
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":  room.ID,
		"owner_id": room.OwnerID,
	})

	r.mu.Lock()
	if p.TimeLimit > 0 {
		expiry := time.Now().Add(time.Duration(p.TimeLimit) * r.minute)
		room.Expiry = &expiry
		r.scheduleLocked(room.ID, time.Until(expiry))
		logCtx = logCtx.WithField("expiry", expiry)
	}
	r.rooms[room.ID] = room
	snapshot := cloneRoom(room)
	r.mu.Unlock()

	logCtx.Info("Room created")
	return snapshot, nil
}

// Get 按 ID 查找房间，返回锁内制作的快照副本。
// 活跃的 Room 只在注册表锁下变更；把副本交给调用方，
// 网关和 handler 在锁外读字段就不会与并发补丁竞争。
func (r *RoomRegistry) Get(roomID string) (*domain.Room, error) {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	var snapshot *domain.Room
	if ok {
		snapshot = cloneRoom(room)
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return snapshot, nil
}

// cloneRoom 深拷贝可变字段（SecretHash、Expiry），令牌等字符串不可变。
func cloneRoom(room *domain.Room) *domain.Room {
	clone := *room
	clone.SecretHash = append([]byte(nil), room.SecretHash...)
	if room.Expiry != nil {
		expiry := *room.Expiry
		clone.Expiry = &expiry
	}
	return &clone
}

// ListPublic 返回全部公开房间的脱敏视图。
func (r *RoomRegistry) ListPublic() []domain.PublicRoomView {
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]domain.PublicRoomView, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.IsPublic {
			views = append(views, room.PublicView())
		}
	}
	return views
}

// ListAll 返回全部房间的管理视图，附带派生的 timeLeft。特权操作。
func (r *RoomRegistry) ListAll() []domain.AdminRoomView {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]domain.AdminRoomView, 0, len(r.rooms))
	for _, room := range r.rooms {
		views = append(views, room.AdminView(now))
	}
	return views
}

// Delete 删除房间。requesterOwnerID 与房间 OwnerID 匹配或 isAdmin 为真时放行。
// 删除会立即取消过期定时器。
func (r *RoomRegistry) Delete(roomID, requesterOwnerID string, isAdmin bool) error {
	logCtx := logrus.WithField("room_id", roomID)

	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if !isAdmin && (requesterOwnerID == "" || requesterOwnerID != room.OwnerID) {
		r.mu.Unlock()
		logCtx.Warn("Registry.Delete: Requester is neither owner nor admin")
		return ErrUnauthorized
	}
	r.deleteLocked(roomID)
	hooks := append([]func(string){}, r.onDelete...)
	r.mu.Unlock()

	logCtx.Info("Room deleted")
	for _, fn := range hooks {
		fn(roomID)
	}
	return nil
}

// Update 应用管理员补丁。extendTime 的语义见 domain.RoomUpdate。
func (r *RoomRegistry) Update(roomID string, patch domain.RoomUpdate) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)

	// bcrypt 开销不小，哈希在锁外算好
	var newHash []byte
	if patch.Credential != nil && *patch.Credential != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Credential), bcrypt.DefaultCost)
		if err != nil {
			logCtx.WithError(err).Error("Registry.Update: Failed to hash room credential")
			return nil, ErrInternalServer
		}
		newHash = hash
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	if patch.Name != nil && *patch.Name != "" {
		room.Name = *patch.Name
	}
	if patch.IsPublic != nil {
		room.IsPublic = *patch.IsPublic
	}
	if patch.Credential != nil {
		room.SecretHash = newHash // 空字符串补丁时 newHash 为 nil，即清除口令
	}
	if patch.MaxUsers != nil && *patch.MaxUsers >= 0 {
		room.MaxUsers = *patch.MaxUsers
	}

	if patch.ExtendTime != nil {
		switch {
		case *patch.ExtendTime > 0:
			// 未过期则在现有 expiry 上叠加，已过期则从现在重新起算。
			// scheduleLocked 会先取代旧定时器再武装新的，两步在同一锁内完成。
			now := time.Now()
			base := now
			if room.Expiry != nil && room.Expiry.After(now) {
				base = *room.Expiry
			}
			expiry := base.Add(time.Duration(*patch.ExtendTime) * r.minute)
			room.Expiry = &expiry
			r.scheduleLocked(roomID, time.Until(expiry))
			logCtx.WithField("expiry", expiry).Info("Room expiry extended")
		case *patch.ExtendTime == 0:
			r.cancelLocked(roomID)
			room.Expiry = nil
			logCtx.Info("Room time limit removed")
		}
		// 负数视为缺省，expiry 不动
	}

	logCtx.Info("Room updated")
	return cloneRoom(room), nil
}

// Close 停止所有定时器。进程关闭时调用。
func (r *RoomRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.timers {
		r.cancelLocked(id)
	}
}

// scheduleLocked 为房间武装一个新的过期定时器，取代已存在的旧定时器。
// 调用方必须持有 r.mu。
func (r *RoomRegistry) scheduleLocked(roomID string, d time.Duration) {
	if t, ok := r.timers[roomID]; ok {
		t.Stop()
	}
	r.gens[roomID]++
	gen := r.gens[roomID]
	r.timers[roomID] = time.AfterFunc(d, func() {
		r.expire(roomID, gen)
	})
}

// cancelLocked 取消房间的过期定时器并递增代数，使在途回调作废。
// 调用方必须持有 r.mu。
func (r *RoomRegistry) cancelLocked(roomID string) {
	if t, ok := r.timers[roomID]; ok {
		t.Stop()
		delete(r.timers, roomID)
	}
	r.gens[roomID]++
}

// deleteLocked 从注册表移除房间并清理定时器状态。调用方必须持有 r.mu。
func (r *RoomRegistry) deleteLocked(roomID string) {
	r.cancelLocked(roomID)
	delete(r.rooms, roomID)
	delete(r.gens, roomID)
}

// expire 是过期定时器的回调。
func (r *RoomRegistry) expire(roomID string, gen uint64) {
	r.mu.Lock()
	if r.gens[roomID] != gen {
		// 定时器已被 extendTime 或删除取代
		r.mu.Unlock()
		return
	}
	if _, ok := r.rooms[roomID]; !ok {
		r.mu.Unlock()
		return
	}
	r.deleteLocked(roomID)
	hooks := append([]func(string){}, r.onDelete...)
	r.mu.Unlock()

	logrus.WithField("room_id", roomID).Info("Room expired and deleted")
	for _, fn := range hooks {
		fn(roomID)
	}
}
