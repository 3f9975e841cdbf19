package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/retail-checkout/internal/config"
	"github.com/ariefcatur/retail-checkout/internal/events"
	kafkax "github.com/ariefcatur/retail-checkout/internal/kafka"
	"github.com/ariefcatur/retail-checkout/internal/logging"
	"github.com/ariefcatur/retail-checkout/internal/projection"
	"github.com/ariefcatur/retail-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.ServiceName+"-projector", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.RedisAddr == "" || len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("projector needs REDIS_ADDR and KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	p := &projection.Projector{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-projector",
		Logger:      logger,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, events.TopicOrderPlaced, cfg.ProjectorWorkers, logger)

	logger.Info("projector started",
		zap.String("group", cfg.ProjectorGroup),
		zap.String("topic", events.TopicOrderPlaced),
		zap.Int("workers", cfg.ProjectorWorkers),
	)
	if err := cons.Start(ctx, p.HandleOrderPlaced); err != nil {
		logger.Error("consumer exit", zap.Error(err))
		return
	}
	logger.Info("projector stopped")
}
