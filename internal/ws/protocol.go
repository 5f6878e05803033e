package ws

import "encoding/json"

// 协议事件名，与最初的 socket.io 事件保持一致。
const (
	EventRegister          = "register"
	EventRegistrationError = "registrationError"
	EventHistory           = "history"
	EventRequestHistory    = "requestHistory"
	EventHistoryResponse   = "historyResponse"
	EventHistoryError      = "historyError"
	EventSendMessage       = "sendMessage"
	EventMessageError      = "messageError"
)

// Envelope 是 websocket 上双向传输的统一包装。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RegisterData 注册请求负载。
type RegisterData struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

// SendData 发送消息负载。userId 不在此处：发送者身份以会话为准。
type SendData struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	ClipReg *int   `json:"clipReg,omitempty"`
}

// HistoryRequest 增量历史请求负载，fromId 含端。
type HistoryRequest struct {
	Room   string `json:"room"`
	FromID int64  `json:"fromId"`
}

// ErrorData 各类错误通知的负载。
type ErrorData struct {
	Message string `json:"message"`
}

// encode 把事件和负载打包成一帧。负载序列化失败属于编程错误，
// 此时退化成空 data 帧而不是丢弃事件。
func encode(event string, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data = nil
	}
	b, _ := json.Marshal(Envelope{Event: event, Data: data})
	return b
}
