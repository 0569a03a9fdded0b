package domain

import (
	"math"
	"time"
)

// Role 表示房间默认授予加入者的角色。
type Role string

const (
	RoleEditor  Role = "editor"
	RoleVisitor Role = "visitor"
)

// ParseRole 将请求中的字符串映射为 Role，未知值回退为 editor。
func ParseRole(s string) Role {
	if Role(s) == RoleVisitor {
		return RoleVisitor
	}
	return RoleEditor
}

// Permission 是连接建立时解析出的权限，连接存续期间不变。
type Permission string

const (
	PermissionWrite Permission = "write"
	PermissionRead  Permission = "read"
	PermissionNone  Permission = "none"
)

// Room 表示一个内存中的协作白板房间。房间随进程生灭，不做持久化。
type Room struct {
	ID          string
	Name        string
	OwnerID     string
	SecretHash  []byte // bcrypt 哈希后的加入口令；nil 表示无需口令
	IsPublic    bool
	DefaultRole Role
	MaxUsers    int // 0 表示不限制；仅作容量提示，不在连接时强制执行

	// 两个能力令牌在房间创建时生成，生命周期内不变：
	// AdminToken 永远对应写权限，VisitorToken 永远对应读权限。
	AdminToken   string
	VisitorToken string

	Expiry    *time.Time // nil 表示永不过期
	CreatedAt time.Time
}

// HasSecret 报告房间是否设置了加入口令。
func (r *Room) HasSecret() bool {
	return len(r.SecretHash) > 0
}

// RoomUpdate 是管理员对房间的补丁，每个字段显式可选。nil 字段保持原值。
type RoomUpdate struct {
	Name       *string
	IsPublic   *bool
	Credential *string // 空字符串表示清除口令
	MaxUsers   *int
	// ExtendTime 单位为分钟。正数表示在 max(now, expiry) 基础上延长；
	// 0 表示移除时间限制；nil 表示不改动。
	ExtendTime *int
}

// PublicRoomView 是公开房间列表对外暴露的形态，
// 口令、所有者和两个令牌全部脱敏。
type PublicRoomView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsPublic    bool   `json:"isPublic"`
	HasPassword bool   `json:"hasPassword"`
	DefaultRole Role   `json:"defaultRole"`
	MaxUsers    int    `json:"maxUsers"`
	Expiry      *int64 `json:"expiry"`
	CreatedAt   int64  `json:"createdAt"`
}

// AdminRoomView 是管理端看到的完整房间信息，附带剩余秒数。
// 时间戳统一使用毫秒 epoch，与既有客户端的线上格式保持一致。
type AdminRoomView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	OwnerID      string `json:"ownerId"`
	IsPublic     bool   `json:"isPublic"`
	HasPassword  bool   `json:"hasPassword"`
	DefaultRole  Role   `json:"defaultRole"`
	MaxUsers     int    `json:"maxUsers"`
	AdminToken   string `json:"adminToken"`
	VisitorToken string `json:"visitorToken"`
	Expiry       *int64 `json:"expiry"`
	CreatedAt    int64  `json:"createdAt"`
	TimeLeft     *int64 `json:"timeLeft"` // 距过期的秒数，向上取整并钳制为 0；无限制时为 null
}

// PublicView 构造脱敏后的公开视图。
func (r *Room) PublicView() PublicRoomView {
	return PublicRoomView{
		ID:          r.ID,
		Name:        r.Name,
		IsPublic:    r.IsPublic,
		HasPassword: r.HasSecret(),
		DefaultRole: r.DefaultRole,
		MaxUsers:    r.MaxUsers,
		Expiry:      epochMillisPtr(r.Expiry),
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
}

// AdminView 构造管理视图，now 用于派生 timeLeft。
func (r *Room) AdminView(now time.Time) AdminRoomView {
	view := AdminRoomView{
		ID:           r.ID,
		Name:         r.Name,
		OwnerID:      r.OwnerID,
		IsPublic:     r.IsPublic,
		HasPassword:  r.HasSecret(),
		DefaultRole:  r.DefaultRole,
		MaxUsers:     r.MaxUsers,
		AdminToken:   r.AdminToken,
		VisitorToken: r.VisitorToken,
		Expiry:       epochMillisPtr(r.Expiry),
		CreatedAt:    r.CreatedAt.UnixMilli(),
	}
	if r.Expiry != nil {
		left := int64(math.Ceil(r.Expiry.Sub(now).Seconds()))
		if left < 0 {
			left = 0
		}
		view.TimeLeft = &left
	}
	return view
}

func epochMillisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
