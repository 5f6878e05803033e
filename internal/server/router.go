package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/oopstls/clippy-server/internal/config"
	clog "github.com/oopstls/clippy-server/internal/log"
	"github.com/oopstls/clippy-server/internal/metrics"
	"github.com/oopstls/clippy-server/internal/mw"
	"github.com/oopstls/clippy-server/internal/registry"
	"github.com/oopstls/clippy-server/internal/store"
	"github.com/oopstls/clippy-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST 查询接口以及 WebSocket 端点。
func SetupRouter(cfg config.Config, st *store.Store, reg *registry.Registry, router *ws.Router, audit *clog.Audit) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 限速只针对 REST 查询；websocket 握手频率本来就低。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.GET("/rooms", func(c *gin.Context) {
		type roomDTO struct {
			Room   string `json:"room"`
			Online int    `json:"online"`
		}
		rooms := reg.Rooms()
		out := make([]roomDTO, 0, len(rooms))
		for _, room := range rooms {
			out = append(out, roomDTO{Room: room, Online: reg.Online(room)})
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out})
	})

	// 单条消息点查，返回原始 content（图片即 base64 串）。
	api.GET("/rooms/:room/messages/:id", func(c *gin.Context) {
		room := c.Param("room")
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			audit.Event("message lookup rejected: bad id " + c.Param("id"))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
			return
		}
		msg, err := st.FetchOne(room, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
				return
			}
			log.Error().Err(err).Str("room", room).Int64("id", id).Msg("message lookup")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		audit.Event("message lookup: " + room + "/" + c.Param("id"))
		c.String(http.StatusOK, msg.Content)
	})

	r.GET("/ws", ws.Serve(st, reg, router, audit, cfg))

	return r
}
