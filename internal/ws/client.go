package ws

import (
	"net/http"
	"time"

	"github.com/oopstls/clippy-server/internal/config"
	clog "github.com/oopstls/clippy-server/internal/log"
	"github.com/oopstls/clippy-server/internal/metrics"
	"github.com/oopstls/clippy-server/internal/registry"
	"github.com/oopstls/clippy-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// 心跳参数沿用原始部署：25s 一次 ping，60s 无响应判死。
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 绑定一条 websocket 连接和它的会话状态机。
// 写操作全部经由带缓冲的 send 队列走 writePump，读只发生在 readPump。
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	sess *Session
}

// Send 非阻塞入队。连接已关闭或队列满时丢弃本帧并报告 false，
// 慢消费者不拖慢别人。
func (c *Client) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Serve 返回 websocket 升级入口。注册在协议内完成，不走 URL 参数。
func Serve(st *store.Store, reg *registry.Registry, router *Router, audit *clog.Audit, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade")
			return
		}
		client := &Client{conn: conn, send: make(chan []byte, 256), done: make(chan struct{})}
		client.sess = NewSession(client, st, reg, router, audit)

		metrics.WsConnections.Inc()
		go client.writePump()
		client.readPump(cfg.MaxMessageBytes)
	}
}

func (c *Client) readPump(maxMessageBytes int64) {
	// 连接由 writePump 负责关闭：先冲队列再发关闭帧。
	defer func() {
		c.sess.Teardown()
		close(c.done)
		metrics.WsConnections.Dec()
	}()
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := c.sess.Dispatch(data); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			// 先把已入队的帧冲掉（比如注册被拒的错误通知），再发关闭帧。
			for {
				select {
				case message := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if w, err := c.conn.NextWriter(websocket.TextMessage); err == nil {
						_, _ = w.Write(message)
						_ = w.Close()
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
