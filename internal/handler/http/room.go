package http

import (
	"errors"
	"io"
	"net/http"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装房间管理相关的 HTTP 处理逻辑。
type RoomHandler struct {
	registry *service.RoomRegistry
	access   *service.AccessControl
}

// NewRoomHandler 创建 RoomHandler 实例。
func NewRoomHandler(registry *service.RoomRegistry, access *service.AccessControl) *RoomHandler {
	if registry == nil {
		panic("RoomRegistry cannot be nil for RoomHandler")
	}
	if access == nil {
		panic("AccessControl cannot be nil for RoomHandler")
	}
	return &RoomHandler{registry: registry, access: access}
}

// ListPublicRooms 处理 GET /rooms：公开房间的脱敏列表。
func (h *RoomHandler) ListPublicRooms(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, h.registry.ListPublic())
}

// ListAllRooms 处理 GET /admin/rooms：全部房间加剩余秒数。
// 路由上已挂 RequireAdmin。
func (h *RoomHandler) ListAllRooms(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, h.registry.ListAll())
}

// CreateRoomRequest 定义创建房间请求体。
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Password    string `json:"password"`
	IsPublic    *bool  `json:"isPublic"`
	TimeLimit   int    `json:"timeLimit"`
	MaxUsers    int    `json:"maxUsers"`
	DefaultRole string `json:"defaultRole"`
	OwnerID     string `json:"ownerId"`
}

// CreateRoomResponse 定义创建房间成功的响应体。
// 两个令牌交还给创建者，由其分享。
type CreateRoomResponse struct {
	RoomID       string `json:"roomId"`
	OwnerID      string `json:"ownerId"`
	AdminToken   string `json:"adminToken"`
	VisitorToken string `json:"visitorToken"`
}

// CreateRoom 处理 POST /rooms。
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid request body")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		ErrorResponse(c, http.StatusBadRequest, "Room name is required")
		return
	}

	room, err := h.registry.Create(service.CreateRoomParams{
		Name:        req.Name,
		Credential:  req.Password,
		IsPublic:    req.IsPublic,
		TimeLimit:   req.TimeLimit,
		MaxUsers:    req.MaxUsers,
		DefaultRole: domain.ParseRole(req.DefaultRole),
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, CreateRoomResponse{
		RoomID:       room.ID,
		OwnerID:      room.OwnerID,
		AdminToken:   room.AdminToken,
		VisitorToken: room.VisitorToken,
	})
}

// RoomDescriptor 是 GET /rooms/:id 的响应体。
// 两个令牌一并返回以支撑分享流程，这是既有外部契约的一部分。
type RoomDescriptor struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	IsPublic     bool        `json:"isPublic"`
	HasPassword  bool        `json:"hasPassword"`
	DefaultRole  domain.Role `json:"defaultRole"`
	MaxUsers     int         `json:"maxUsers"`
	AdminToken   string      `json:"adminToken"`
	VisitorToken string      `json:"visitorToken"`
}

// GetRoom 处理 GET /rooms/:id。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, RoomDescriptor{
		ID:           room.ID,
		Name:         room.Name,
		IsPublic:     room.IsPublic,
		HasPassword:  room.HasSecret(),
		DefaultRole:  room.DefaultRole,
		MaxUsers:     room.MaxUsers,
		AdminToken:   room.AdminToken,
		VisitorToken: room.VisitorToken,
	})
}

// JoinRoomRequest 定义加入房间请求体。
type JoinRoomRequest struct {
	Password string `json:"password"`
}

// JoinRoomResponse 定义加入房间成功的响应体。
type JoinRoomResponse struct {
	Success bool        `json:"success"`
	Role    domain.Role `json:"role"`
	Token   string      `json:"token"`
}

// JoinRoom 处理 POST /rooms/:id/join：口令正确时发放默认角色对应的令牌。
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	// 允许空请求体：无口令房间的加入可以不带 body
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logrus.WithError(err).Warn("Handler.JoinRoom: Invalid request body")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := h.registry.Get(c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	role, token, err := h.access.CheckJoinCredential(room, req.Password)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room_id": room.ID, "role": role}).Info("Handler.JoinRoom: Join credential accepted")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{Success: true, Role: role, Token: token})
}

// DeleteRoomRequest 定义删除房间的可选请求体。
type DeleteRoomRequest struct {
	OwnerID string `json:"ownerId"`
}

// DeleteRoom 处理 DELETE /rooms/:id：平台管理员或房主可删。
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	var req DeleteRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logrus.WithError(err).Warn("Handler.DeleteRoom: Invalid request body")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := h.registry.Delete(c.Param("id"), req.OwnerID, c.GetBool("is_admin"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// UpdateRoomRequest 定义管理员补丁请求体。指针字段缺省表示不改动。
type UpdateRoomRequest struct {
	Name       *string `json:"name"`
	IsPublic   *bool   `json:"isPublic"`
	Password   *string `json:"password"`
	MaxUsers   *int    `json:"maxUsers"`
	ExtendTime *int    `json:"extendTime"`
}

// UpdateRoom 处理 PATCH /rooms/:id。路由上已挂 RequireAdmin。
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	var req UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UpdateRoom: Invalid request body")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := h.registry.Update(c.Param("id"), domain.RoomUpdate{
		Name:       req.Name,
		IsPublic:   req.IsPublic,
		Credential: req.Password,
		MaxUsers:   req.MaxUsers,
		ExtendTime: req.ExtendTime,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	// 响应里的房间走脱敏视图，令牌不随补丁回显
	SuccessResponse(c, http.StatusOK, gin.H{"success": true, "room": room.PublicView()})
}
