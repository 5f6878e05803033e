package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oopstls/clippy-server/internal/config"
	clog "github.com/oopstls/clippy-server/internal/log"
	"github.com/oopstls/clippy-server/internal/registry"
	"github.com/oopstls/clippy-server/internal/server"
	"github.com/oopstls/clippy-server/internal/store"
	"github.com/oopstls/clippy-server/internal/ws"

	"github.com/rs/zerolog/log"
)

const banner = `
  ####   ####      ####    ######   ######   ##  ##
 ##  ##   ##        ##      ##  ##   ##  ##  ##  ##
##        ##        ##      ##  ##   ##  ##  ##  ##
##        ##        ##      #####    #####    ####
##        ##   #    ##      ##       ##        ##
 ##  ##   ##  ##    ##      ##       ##        ##
  ####   #######   ####    ####     ####      ####
`

func main() {
	// main 负责加载配置、初始化日志和存储、组装各组件并启动服务。
	fmt.Print(banner)

	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	audit := clog.NewAudit(cfg.LogFile)
	defer audit.Close()

	st := store.New(cfg.DataDir)
	reg := registry.New(st.Release)
	router := ws.NewRouter(reg)

	engine := server.SetupRouter(cfg, st, reg, router, audit)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Port).Str("dataDir", cfg.DataDir).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	for _, room := range st.Rooms() {
		st.Release(room)
	}
}
