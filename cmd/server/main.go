package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/chat"
	"github.com/suPer8Hu/pairchat/internal/config"
	"github.com/suPer8Hu/pairchat/internal/db"
	"github.com/suPer8Hu/pairchat/internal/gateway"
	"github.com/suPer8Hu/pairchat/internal/httpapi"
	"github.com/suPer8Hu/pairchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/pairchat/internal/logger"
	"github.com/suPer8Hu/pairchat/internal/presence"
	"github.com/suPer8Hu/pairchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/pairchat/internal/store/redisstore"
	"github.com/suPer8Hu/pairchat/internal/users"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	gin.SetMode(gin.ReleaseMode)

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		lg.Fatal("db open", zap.Error(err))
	}
	if err := db.Migrate(gdb, append(chat.Models(), &users.User{})...); err != nil {
		lg.Fatal("db migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	usersRepo := users.NewRepo(gdb)
	if cfg.ResetPresenceOnStart {
		n, err := usersRepo.MarkAllOffline(ctx, time.Now())
		if err != nil {
			lg.Fatal("reset user status", zap.Error(err))
		}
		lg.Info("user status reset", zap.Int64("users", n))
	}

	registry := presence.NewRegistry(presence.Options{
		Shards:      cfg.PresenceShards,
		EventBuffer: cfg.PresenceEventBuffer,
	}, lg.Named("presence"))

	gw := gateway.New(registry, lg.Named("gateway"), gateway.Options{SendBuffer: cfg.WSSendBuffer})
	registry.Subscribe(gw)

	// status events feed the worker; chat keeps working without the broker
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		lg.Warn("rabbit unavailable, presence transitions will not be recorded", zap.Error(err))
	} else {
		defer pub.Close()
		registry.Subscribe(pub)
	}

	var snaps handlers.PresenceSnapshots
	rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rs.Close()
	pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
	if err := rs.Ping(pingCtx); err != nil {
		lg.Warn("redis unavailable, last_seen_at disabled", zap.Error(err))
	} else {
		snaps = rs
	}
	cancelPing()

	go registry.Run(ctx)

	chatRepo := chat.NewRepo(gdb)
	dispatcher := chat.NewDispatcher(
		chat.NewResolver(chatRepo),
		chat.NewStore(chatRepo),
		registry,
		gw,
		lg.Named("dispatcher"),
		chat.DispatcherOptions{
			MaxContentLength: cfg.MaxContentLength,
			PushTimeout:      cfg.PushTimeout,
		},
	)
	chatSvc := chat.NewService(chatRepo, dispatcher, cfg.HistoryPageSize)

	h := handlers.NewHandler(cfg, lg, usersRepo, chatSvc, gw, snaps)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	gw.Shutdown()
}
