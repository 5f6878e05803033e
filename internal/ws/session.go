package ws

import (
	"encoding/json"
	"errors"

	clog "github.com/oopstls/clippy-server/internal/log"
	"github.com/oopstls/clippy-server/internal/metrics"
	"github.com/oopstls/clippy-server/internal/models"
	"github.com/oopstls/clippy-server/internal/registry"
	"github.com/oopstls/clippy-server/internal/store"

	"github.com/rs/zerolog/log"
)

// State 是会话状态机的状态。
type State int

const (
	Unregistered State = iota
	Registered
	Closed
)

// errTerminate 指示调用方关闭底层连接。
var errTerminate = errors.New("session terminated")

// Session 是单个连接的协议状态机：先注册，再收发消息或请求历史，
// 断开时注销。事件按 (状态, 事件) 匹配，不合法的组合回一条错误通知，
// 绝不静默丢弃。
type Session struct {
	state  State
	room   string
	userID string

	out    registry.Conn
	store  *store.Store
	reg    *registry.Registry
	router *Router
	audit  *clog.Audit
}

func NewSession(out registry.Conn, st *store.Store, reg *registry.Registry, router *Router, audit *clog.Audit) *Session {
	return &Session{state: Unregistered, out: out, store: st, reg: reg, router: router, audit: audit}
}

// State 返回当前状态，只在会话自己的 goroutine 里可靠。
func (s *Session) State() State { return s.state }

// Dispatch 处理一帧入站数据。返回非 nil 时调用方必须关闭连接。
func (s *Session) Dispatch(raw []byte) error {
	if s.state == Closed {
		return errTerminate
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.out.Send(encode(EventMessageError, ErrorData{Message: "Malformed payload."}))
		return nil
	}

	switch {
	case s.state == Unregistered && env.Event == EventRegister:
		return s.handleRegister(env.Data)
	case s.state == Unregistered:
		// 未注册时只接受 register
		s.out.Send(encode(EventRegistrationError, ErrorData{Message: "Register first."}))
		s.state = Closed
		return errTerminate
	case env.Event == EventRegister:
		s.out.Send(encode(EventMessageError, ErrorData{Message: "Already registered."}))
		return nil
	case env.Event == EventSendMessage:
		s.handleSend(env.Data)
		return nil
	case env.Event == EventRequestHistory:
		s.handleRequestHistory(env.Data)
		return nil
	default:
		s.out.Send(encode(EventMessageError, ErrorData{Message: "Unknown event."}))
		return nil
	}
}

func (s *Session) handleRegister(data json.RawMessage) error {
	var req RegisterData
	if err := json.Unmarshal(data, &req); err != nil {
		s.out.Send(encode(EventRegistrationError, ErrorData{Message: "Malformed register payload."}))
		s.state = Closed
		return errTerminate
	}

	if err := s.reg.Register(req.Room, req.UserID, s.out); err != nil {
		msg := "Room ID and User ID cannot be empty."
		if errors.Is(err, registry.ErrDuplicateUser) {
			msg = "User ID already exists in this room."
		}
		s.out.Send(encode(EventRegistrationError, ErrorData{Message: msg}))
		s.state = Closed
		return errTerminate
	}

	s.state = Registered
	s.room = req.Room
	s.userID = req.UserID
	s.audit.Event("session registered: room=" + s.room + " userId=" + s.userID)

	// 注册成功后全量回放历史。回放失败只通知本人，会话继续。
	msgs, err := s.store.FetchFrom(s.room, 1)
	if err != nil {
		log.Error().Err(err).Str("room", s.room).Msg("history replay")
		s.out.Send(encode(EventHistoryError, ErrorData{Message: "Failed to retrieve history messages."}))
		return nil
	}
	s.out.Send(encode(EventHistory, msgs))
	return nil
}

func (s *Session) handleSend(data json.RawMessage) {
	var req SendData
	if err := json.Unmarshal(data, &req); err != nil {
		s.out.Send(encode(EventMessageError, ErrorData{Message: "Malformed message payload."}))
		return
	}

	s.audit.Message("Received", s.room, s.userID, req.Type, auditContent(req.Type, req.Content))

	msg, err := s.store.Append(s.room, s.userID, req.Type, req.Content, req.ClipReg)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			metrics.MessagesRejected.Inc()
			s.out.Send(encode(EventMessageError, ErrorData{Message: "Invalid message: " + err.Error()}))
			return
		}
		log.Error().Err(err).Str("room", s.room).Str("userId", s.userID).Msg("store message")
		s.out.Send(encode(EventMessageError, ErrorData{Message: "Failed to store message."}))
		return
	}

	metrics.MessagesPersisted.WithLabelValues(msg.Type).Inc()
	s.router.Publish(s.room, msg)
	s.audit.Message("Sent", s.room, s.userID, msg.Type, auditContent(msg.Type, msg.Content))
}

func (s *Session) handleRequestHistory(data json.RawMessage) {
	var req HistoryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.out.Send(encode(EventHistoryError, ErrorData{Message: "Malformed history request."}))
		return
	}
	if req.Room != s.room {
		s.out.Send(encode(EventHistoryError, ErrorData{Message: "Room does not match this session."}))
		return
	}
	msgs, err := s.store.FetchFrom(s.room, req.FromID)
	if err != nil {
		log.Error().Err(err).Str("room", s.room).Int64("fromId", req.FromID).Msg("fetch history")
		s.out.Send(encode(EventHistoryError, ErrorData{Message: "Failed to retrieve history messages."}))
		return
	}
	s.out.Send(encode(EventHistoryResponse, msgs))
}

// Teardown 在传输层断开后调用，注销会话并进入终态。幂等。
func (s *Session) Teardown() {
	if s.state == Registered {
		s.reg.Unregister(s.room, s.userID)
		s.audit.Event("session closed: room=" + s.room + " userId=" + s.userID)
	}
	s.state = Closed
}

// auditContent 图片正文不进日志，换成占位符。
func auditContent(msgType, content string) string {
	if msgType == models.TypeImage {
		return "[Image]"
	}
	return content
}
