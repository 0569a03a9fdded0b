package protocol

// 实时帧采用两级信封：外层一个消息类型字节，内层（仅同步类消息）
// 一个子类型字节区分握手请求、握手应答和增量更新。
// 该字节布局是与未经修改的对端互操作的固定外部契约，不可改动。
const (
	messageSync byte = 0

	syncStep1  byte = 0 // 握手请求：索要当前状态
	syncStep2  byte = 1 // 握手应答：携带完整状态
	syncUpdate byte = 2 // 增量更新：对共享文档的变更
)

// Kind 是帧解码后的带标签变体，过滤规则据此成为一个全函数。
type Kind int

const (
	KindInvalid Kind = iota
	KindHandshakeRequest
	KindHandshakeReply
	KindUpdate
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindHandshakeRequest:
		return "handshake_request"
	case KindHandshakeReply:
		return "handshake_reply"
	case KindUpdate:
		return "update"
	case KindOther:
		return "other"
	default:
		return "invalid"
	}
}

// Mutates 报告该类帧是否会写入共享文档。
// 只读连接的入站帧中，只有 Mutates 为真的帧会被网关丢弃。
func (k Kind) Mutates() bool {
	return k == KindUpdate
}

// Frame 是一个已分类的入站帧。
// Payload 是同步类帧去掉两个标签字节后的内容；Raw 是完整原始帧，
// 转发时必须原样使用 Raw 以保持线上格式不变。
type Frame struct {
	Kind    Kind
	Payload []byte
	Raw     []byte
}

// Classify 对任意字节序列给出全定义的分类结果：
// 空帧或截断的同步帧归为 KindInvalid，非同步外层类型归为 KindOther。
func Classify(data []byte) Frame {
	if len(data) == 0 {
		return Frame{Kind: KindInvalid, Raw: data}
	}
	if data[0] != messageSync {
		return Frame{Kind: KindOther, Raw: data}
	}
	if len(data) < 2 {
		return Frame{Kind: KindInvalid, Raw: data}
	}
	switch data[1] {
	case syncStep1:
		return Frame{Kind: KindHandshakeRequest, Payload: data[2:], Raw: data}
	case syncStep2:
		return Frame{Kind: KindHandshakeReply, Payload: data[2:], Raw: data}
	case syncUpdate:
		return Frame{Kind: KindUpdate, Payload: data[2:], Raw: data}
	default:
		return Frame{Kind: KindInvalid, Raw: data}
	}
}

// HandshakeRequestFrame 构造一个握手请求帧。
func HandshakeRequestFrame(payload []byte) []byte {
	return encodeSync(syncStep1, payload)
}

// HandshakeReplyFrame 构造一个携带文档状态的握手应答帧。
func HandshakeReplyFrame(state []byte) []byte {
	return encodeSync(syncStep2, state)
}

// UpdateFrame 构造一个增量更新帧。
func UpdateFrame(update []byte) []byte {
	return encodeSync(syncUpdate, update)
}

func encodeSync(sub byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+2)
	buf = append(buf, messageSync, sub)
	return append(buf, payload...)
}
