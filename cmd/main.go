package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"protalent/backend/internal/api/handler"
	"protalent/backend/internal/auth"
	"protalent/backend/internal/chathub"
	"protalent/backend/internal/config"
	"protalent/backend/internal/events"
	"protalent/backend/internal/localization"
	"protalent/backend/internal/metrics"
	"protalent/backend/internal/storage"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	sugar := logger.Sugar()
	if !dotenv {
		sugar.Info("no .env file found, using the process environment")
	}
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Init()

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("cannot open store: %v", err)
	}

	hubOpts := []chathub.Option{}
	var broker *storage.RedisBroker
	if cfg.RedisAddr != "" {
		broker, err = storage.NewRedisBroker(ctx, sugar, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			sugar.Fatalf("cannot connect redis: %v", err)
		}
		hubOpts = append(hubOpts, chathub.WithBroker(broker))
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(sugar, cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	hubOpts = append(hubOpts, chathub.WithEvents(publisher))

	loc, err := localization.Default()
	if err != nil {
		sugar.Fatalf("cannot load locales: %v", err)
	}

	hub := chathub.NewHub(store, sugar, hubOpts...)
	go hub.Run()

	h := handler.NewHandler(hub, auth.NewVerifier(cfg.JWTSecret), loc, chathub.ClientConfig{
		RatePerSecond:  cfg.WSRatePerSecond,
		Burst:          cfg.WSRateBurst,
		MaxMessageSize: cfg.WSMaxMessageBytes,
	}, sugar)

	server := &http.Server{
		Addr:           cfg.Addr(),
		Handler:        handler.NewRouter(h, logger),
		ReadTimeout:    cfg.HTTPReadTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		sugar.Infow("chat gateway listening", "addr", server.Addr, "store", cfg.StoreDriver, "node", hub.Node())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("http shutdown", "error", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("hub shutdown", "error", err)
	}
	if broker != nil {
		if err := broker.Close(); err != nil {
			sugar.Warnw("redis close", "error", err)
		}
	}
	if err := publisher.Close(); err != nil {
		sugar.Warnw("event publisher close", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		sugar.Warnw("store close", "error", err)
	}
	sugar.Info("shutdown completed")
}
