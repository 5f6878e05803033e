package log

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Audit 把消息收发记录追加到独立的日志文件，和进程日志分开。
// 写入失败只影响审计，不影响消息处理，所以所有方法都是 fire-and-forget。
type Audit struct {
	lg   zerolog.Logger
	file *os.File
}

// NewAudit 打开（必要时创建）审计日志文件。path 为空或打开失败时
// 返回一个禁用的 Audit，调用方无需区分。
func NewAudit(path string) *Audit {
	if path == "" {
		return &Audit{}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("audit log disabled")
			return &Audit{}
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("audit log disabled")
		return &Audit{}
	}
	lg := zerolog.New(f).With().Timestamp().Logger()
	return &Audit{lg: lg, file: f}
}

// Event 记录一条通用事件。
func (a *Audit) Event(desc string) {
	if a.file == nil {
		return
	}
	a.lg.Info().Time("time", time.Now().UTC()).Msg(desc)
}

// Message 记录一条消息的收发，direction 为 Received 或 Sent。
// 图片消息的正文由调用方替换成占位符，避免把 base64 写进日志。
func (a *Audit) Message(direction, room, userID, msgType, content string) {
	if a.file == nil {
		return
	}
	a.lg.Info().
		Str("direction", direction).
		Str("room", room).
		Str("userId", userID).
		Str("type", msgType).
		Str("content", content).
		Send()
}

// Close 关闭底层文件，进程退出时调用。
func (a *Audit) Close() {
	if a.file != nil {
		_ = a.file.Close()
	}
}
