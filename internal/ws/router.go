package ws

import (
	"github.com/oopstls/clippy-server/internal/metrics"
	"github.com/oopstls/clippy-server/internal/models"
	"github.com/oopstls/clippy-server/internal/registry"
)

// Router 把一条已持久化的消息扇出给房间内的所有在线连接。
type Router struct {
	reg *registry.Registry
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{reg: reg}
}

// Publish 投递 msg 给 room 的全部目标，包括发送者本人。
// 单个目标投递失败（队列满、连接已死）只丢弃该目标的这一帧，
// 不影响其他目标，也不回传错误。
func (rt *Router) Publish(room string, msg models.Message) {
	frame := encode(EventSendMessage, msg)
	for _, c := range rt.reg.BroadcastTargets(room) {
		if c.Send(frame) {
			metrics.BroadcastDeliveries.Inc()
		} else {
			metrics.BroadcastDrops.Inc()
		}
	}
}
