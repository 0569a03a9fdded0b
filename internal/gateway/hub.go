package gateway

import (
	"sync"
	"time"

	"collaborative-whiteboard/internal/merge"
	"collaborative-whiteboard/internal/protocol"

	"github.com/sirupsen/logrus"
)

// 包级 WebSocket 常量，hub 与 client 共用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 帧上限放宽到 1MB：图片对象以 data URL 形式进入更新帧
	maxFrameSize = 1 << 20
)

// hubEvent 是在 Hub 内部通道传递的事件。
type hubEvent struct {
	kind   string // "register", "unregister", "frame", "closeroom"
	client *Client
	frame  protocol.Frame
	roomID string
}

// Hub 维护每个房间的活跃连接集合和共享文档，并在二者之间路由帧。
// 文档由注入的 Factory 惰性创建，随房间存续（客户端全部离开不丢状态），
// 只有 CloseRoom 才会丢弃。
type Hub struct {
	events chan hubEvent
	done   chan struct{}

	roomsMu sync.RWMutex
	rooms   map[string]map[*Client]bool
	docs    map[string]merge.Document

	newDoc merge.Factory
}

// NewHub 创建 Hub 实例。
func NewHub(newDoc merge.Factory) *Hub {
	if newDoc == nil {
		panic("merge.Factory cannot be nil for Hub")
	}
	return &Hub{
		events: make(chan hubEvent, 512),
		done:   make(chan struct{}),
		rooms:  make(map[string]map[*Client]bool),
		docs:   make(map[string]merge.Document),
		newDoc: newDoc,
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case <-h.done:
			log.Info("Hub is shutting down...")
			return
		case ev := <-h.events:
			switch ev.kind {
			case "register":
				h.registerClient(ev.client)
			case "unregister":
				h.unregisterClient(ev.client)
			case "frame":
				h.handleFrame(ev.client, ev.frame)
			case "closeroom":
				h.closeRoom(ev.roomID)
			default:
				log.Warnf("Hub: Received unknown event kind: %s", ev.kind)
			}
		}
	}
}

// Stop 终止事件循环。之后的 queue 调用全部失败。
func (h *Hub) Stop() {
	close(h.done)
}

// queue 将事件放入处理队列（非阻塞）。队列满或 Hub 已停止时返回 false。
func (h *Hub) queue(ev hubEvent) bool {
	select {
	case <-h.done:
		return false
	case h.events <- ev:
		return true
	default:
		logrus.WithField("event_kind", ev.kind).Warn("Hub event channel full, dropping event")
		return false
	}
}

// registerClient 把客户端加入其房间，并主动推送一次携带当前文档状态的
// 握手应答，使新连接（包括只读连接）立刻拿到完整状态。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    client.RoomID(),
		"conn_id":    client.ID(),
		"permission": client.Permission(),
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.RoomID()]; !ok {
		h.rooms[client.RoomID()] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID()][client] = true
	doc := h.docLocked(client.RoomID())
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	client.enqueue(protocol.HandshakeReplyFrame(doc.State()))
}

// unregisterClient 把客户端移出房间并关闭其发送通道。
// 房间变空时只清理连接表，文档保留到房间被删除为止。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"conn_id": client.ID(),
	})

	h.roomsMu.Lock()
	if roomClients, ok := h.rooms[client.RoomID()]; ok {
		if _, exists := roomClients[client]; exists {
			delete(roomClients, client)
			client.closeSend()
			if len(roomClients) == 0 {
				delete(h.rooms, client.RoomID())
				logCtx.Info("Room has no more clients")
			}
		}
	}
	h.roomsMu.Unlock()
	logCtx.Info("Client unregistered from Hub")
}

// handleFrame 按帧类型路由：握手请求回以文档状态，握手应答与更新并入
// 文档，更新帧原样广播给房间内其余连接，非同步帧只做透传广播。
// 到达这里的帧都已通过连接级权限过滤。
func (h *Hub) handleFrame(client *Client, frame protocol.Frame) {
	if client == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.RoomID(),
		"conn_id": client.ID(),
		"kind":    frame.Kind.String(),
	})

	h.roomsMu.RLock()
	doc, ok := h.docs[client.RoomID()]
	h.roomsMu.RUnlock()
	if !ok {
		// 房间已被 CloseRoom 清理，迟到的帧直接丢弃
		logCtx.Debug("Frame for closed room dropped")
		return
	}

	switch frame.Kind {
	case protocol.KindHandshakeRequest:
		client.enqueue(protocol.HandshakeReplyFrame(doc.State()))
	case protocol.KindHandshakeReply:
		if err := doc.ApplyUpdate(frame.Payload); err != nil {
			logCtx.WithError(err).Warn("Failed to apply handshake state")
		}
	case protocol.KindUpdate:
		if err := doc.ApplyUpdate(frame.Payload); err != nil {
			logCtx.WithError(err).Warn("Failed to apply update")
			return
		}
		h.broadcast(client.RoomID(), frame.Raw, client)
	case protocol.KindOther:
		// 感知类消息不写文档，透传给其他连接
		h.broadcast(client.RoomID(), frame.Raw, client)
	}
}

// broadcast 把消息发给房间内除 sender 外的所有客户端。
// 出站方向永不过滤：只读连接同样收到他人的全部编辑。
func (h *Hub) broadcast(roomID string, message []byte, sender *Client) {
	h.roomsMu.RLock()
	roomClients, ok := h.rooms[roomID]
	recipients := make([]*Client, 0, len(roomClients))
	if ok {
		for client := range roomClients {
			if client != sender {
				recipients = append(recipients, client)
			}
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range recipients {
		if !client.enqueue(message) {
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"conn_id": client.ID(),
			}).Warn("Client send channel full during broadcast, skipping")
		}
	}
}

// CloseRoom 在房间被删除或过期时强制断开其全部连接并丢弃文档。
// 清理排进事件循环执行：send 通道只会在循环内被写入，
// 关闭动作与写入串行化后才不会撞上已关闭的通道。
func (h *Hub) CloseRoom(roomID string) {
	if h.queue(hubEvent{kind: "closeroom", roomID: roomID}) {
		return
	}
	// Hub 已停止或队列已满，退化为只关底层连接，由读泵收尾
	h.roomsMu.Lock()
	clients := h.detachRoomLocked(roomID)
	h.roomsMu.Unlock()
	for _, client := range clients {
		client.closeConn()
	}
}

// closeRoom 在事件循环内执行房间的强制关闭。
func (h *Hub) closeRoom(roomID string) {
	h.roomsMu.Lock()
	clients := h.detachRoomLocked(roomID)
	h.roomsMu.Unlock()

	// 房间条目已删，读泵随后的注销事件会空转；send 通道必须在
	// 这里关闭，写泵才不会闲置到下一次 ping 失败
	for _, client := range clients {
		client.closeSend()
		client.closeConn()
	}
	if len(clients) > 0 {
		logrus.WithFields(logrus.Fields{
			"room_id":      roomID,
			"client_count": len(clients),
		}).Info("Room closed, clients disconnected")
	}
}

// detachRoomLocked 摘下房间的连接集合并丢弃文档。调用方必须持有 roomsMu。
func (h *Hub) detachRoomLocked(roomID string) []*Client {
	clients := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		clients = append(clients, client)
	}
	delete(h.rooms, roomID)
	delete(h.docs, roomID)
	return clients
}

// RoomSize 返回房间当前的连接数，供容量提示使用。
func (h *Hub) RoomSize(roomID string) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// docLocked 惰性创建房间文档。调用方必须持有 roomsMu 写锁。
func (h *Hub) docLocked(roomID string) merge.Document {
	doc, ok := h.docs[roomID]
	if !ok {
		doc = h.newDoc(roomID)
		h.docs[roomID] = doc
	}
	return doc
}
