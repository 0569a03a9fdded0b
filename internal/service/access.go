package service

import (
	"collaborative-whiteboard/internal/domain"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AccessControl 根据房间配置与出示的凭据推导权限。
// 它只读取 Room 状态，自身无状态。
type AccessControl struct{}

// NewAccessControl 创建 AccessControl 实例。
func NewAccessControl() *AccessControl {
	return &AccessControl{}
}

// ResolvePermission 为一次入站连接解析权限：
// 管理令牌恒为写、访客令牌恒为读（与 isPublic/defaultRole 的后续改动无关），
// 公开房间按默认角色授权，其余情况拒绝。
func (a *AccessControl) ResolvePermission(room *domain.Room, presentedToken string) domain.Permission {
	switch {
	case presentedToken != "" && presentedToken == room.AdminToken:
		return domain.PermissionWrite
	case presentedToken != "" && presentedToken == room.VisitorToken:
		return domain.PermissionRead
	case room.IsPublic:
		if room.DefaultRole == domain.RoleEditor {
			return domain.PermissionWrite
		}
		return domain.PermissionRead
	default:
		return domain.PermissionNone
	}
}

// CheckJoinCredential 校验加入口令并返回默认角色对应的令牌。
// 口令不匹配时返回 ErrIncorrectCredential，且不发放任何令牌。
// 成功时发放的恰好是默认角色隐含的能力：
// 仅当 defaultRole == editor 才会交出管理令牌。
func (a *AccessControl) CheckJoinCredential(room *domain.Room, suppliedCredential string) (domain.Role, string, error) {
	if room.HasSecret() {
		if err := bcrypt.CompareHashAndPassword(room.SecretHash, []byte(suppliedCredential)); err != nil {
			logrus.WithField("room_id", room.ID).Warn("AccessControl: Join rejected, incorrect credential")
			return "", "", ErrIncorrectCredential
		}
	}
	if room.DefaultRole == domain.RoleEditor {
		return domain.RoleEditor, room.AdminToken, nil
	}
	return domain.RoleVisitor, room.VisitorToken, nil
}
