package gateway // 白盒测试：需要观察客户端 send 通道的关闭

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/merge"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServerConn 建立一条真实的 WebSocket 连接并返回服务端一侧。
func newServerConn(t *testing.T) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server side connection not established")
		return nil
	}
}

func TestCloseRoom_ReleasesWritePumpImmediately(t *testing.T) {
	// CloseRoom 必须同时关闭 send 通道：光关底层连接的话，
	// 写泵要等到下一次 ping 写失败才退出
	hub := NewHub(func(string) merge.Document { return merge.NewLog() })
	go hub.Run()
	defer hub.Stop()

	client := NewClient(hub, newServerConn(t), "room-1", domain.PermissionWrite)
	require.True(t, hub.queue(hubEvent{kind: "register", client: client}))
	require.Eventually(t, func() bool {
		return hub.RoomSize("room-1") == 1
	}, 2*time.Second, 5*time.Millisecond)

	hub.CloseRoom("room-1")

	// 关闭动作经事件循环串行执行
	assert.Eventually(t, func() bool {
		return hub.RoomSize("room-1") == 0
	}, 2*time.Second, 5*time.Millisecond)

	// 入场握手应答可能还排在队列里，排空后通道必须已关闭
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-client.send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel not closed by CloseRoom")
		}
	}
}
