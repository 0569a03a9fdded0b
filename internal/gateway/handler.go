package gateway

import (
	"net/http"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handler 处理实时连接的升级请求：按连接状态机
// Pending → Authorizing → {Admitted | Rejected} 完成授权与准入。
// 拒绝对本次连接是终态，网关不做任何重试。
type Handler struct {
	upgrader websocket.Upgrader
	hub      *Hub
	registry *service.RoomRegistry
	access   *service.AccessControl
}

// NewHandler 创建 Handler 实例。
func NewHandler(hub *Hub, registry *service.RoomRegistry, access *service.AccessControl) *Handler {
	if hub == nil {
		panic("Hub cannot be nil for gateway Handler")
	}
	if registry == nil {
		panic("RoomRegistry cannot be nil for gateway Handler")
	}
	if access == nil {
		panic("AccessControl cannot be nil for gateway Handler")
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: 生产环境从 CORS_ALLOWED_ORIGIN 配置收紧来源检查
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		hub:      hub,
		registry: registry,
		access:   access,
	}
}

// HandleConnection 处理 GET /{roomId}?token={token} 的升级请求。
func (h *Handler) HandleConnection(c *gin.Context) {
	roomID := c.Param("roomId")
	token := c.Query("token")
	logCtx := logrus.WithField("room_id", roomID)

	// 房间必须先经大厅创建，网关不做隐式建房
	room, err := h.registry.Get(roomID)
	if err != nil {
		logCtx.Warn("Gateway: Room not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	permission := h.access.ResolvePermission(room, token)
	if permission == domain.PermissionNone {
		logCtx.Warn("Gateway: Connection rejected, unauthorized")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	logCtx = logCtx.WithField("permission", permission)

	// maxUsers 仅为容量提示：超出只记日志，不拒绝
	if room.MaxUsers > 0 && h.hub.RoomSize(roomID) >= room.MaxUsers {
		logCtx.WithField("max_users", room.MaxUsers).Warn("Gateway: Room above advisory capacity, admitting anyway")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已自行写出 HTTP 错误响应
		logCtx.WithError(err).Error("Gateway: Failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, roomID, permission)
	if !h.hub.queue(hubEvent{kind: "register", client: client}) {
		logCtx.Error("Gateway: Hub event channel full, failed to register client")
		client.closeConn()
		return
	}
	client.Run()
	logCtx.WithField("conn_id", client.ID()).Info("Gateway: Client admitted")
}
