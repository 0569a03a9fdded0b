package gateway

import (
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Client 代表一个已被准入的 WebSocket 连接。
// permission 在升级时解析一次，连接存续期间不再重新授权。
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	roomID     string
	permission domain.Permission
	send       chan []byte
	closeOnce  sync.Once
}

// NewClient 创建 Client 实例。
func NewClient(hub *Hub, conn *websocket.Conn, roomID string, permission domain.Permission) *Client {
	return &Client{
		id:         ulid.Make().String(),
		hub:        hub,
		conn:       conn,
		roomID:     roomID,
		permission: permission,
		send:       make(chan []byte, 256),
	}
}

func (c *Client) ID() string                    { return c.id }
func (c *Client) RoomID() string                { return c.roomID }
func (c *Client) Permission() domain.Permission { return c.permission }

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 把入站帧从 WebSocket 连接泵入 Hub。
// 这是只读连接的唯一写阻断点：增量更新帧在进入合并层之前被无声丢弃，
// 握手帧原样放行，畸形帧丢弃但连接保持打开。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"conn_id": c.id,
	})
	defer func() {
		unregister := hubEvent{kind: "unregister", client: c}
		select {
		case c.hub.events <- unregister:
		case <-time.After(1 * time.Second):
			logCtx.Warn("Timeout sending unregister event to Hub")
		}
		c.closeConn()
		logCtx.Info("ReadPump exited")
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			break
		}
		if messageType != websocket.BinaryMessage {
			logCtx.Debugf("Ignoring non-binary message type: %d", messageType)
			continue
		}

		frame := protocol.Classify(data)
		if frame.Kind == protocol.KindInvalid {
			// 协议违规只罚帧不罚连接
			logCtx.Warn("Dropping malformed frame")
			continue
		}
		if c.permission == domain.PermissionRead && frame.Kind.Mutates() {
			logCtx.Debug("Dropped update frame from read-only connection")
			continue
		}

		c.hub.queue(hubEvent{kind: "frame", client: c, frame: frame})
	}
}

// WritePump 把消息从 send 通道泵出到 WebSocket 连接，并周期性发送 Ping。
func (c *Client) WritePump() {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"conn_id": c.id,
	})
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
		logCtx.Info("WritePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 在注销时关闭了 send 通道
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// enqueue 非阻塞地把一条出站消息放入发送队列。
func (c *Client) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送通道，WritePump 随之退出。只能由 Hub 调用一次。
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) closeConn() {
	_ = c.conn.Close()
}
