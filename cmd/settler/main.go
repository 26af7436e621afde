package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pixel-market.git/internal/config"
	kafkax "github.com/ariefcatur/go-pixel-market.git/internal/kafka"
	"github.com/ariefcatur/go-pixel-market.git/internal/logger"
	"github.com/ariefcatur/go-pixel-market.git/internal/monitoring"
	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/ariefcatur/go-pixel-market.git/internal/payments"
	"github.com/ariefcatur/go-pixel-market.git/internal/postgres"
	"github.com/ariefcatur/go-pixel-market.git/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-settler"
	lg, err := logger.New(cfg.Environment, name)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.SettlerWorkers)+1)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrders, 1024, lg)
	prod.Start(context.Background())

	svc := &orders.Service{
		Store:        &postgres.Store{DB: db},
		Events:       &kafkax.EventPublisher{Producer: prod},
		Monitor:      monitoring.NewMonitor(),
		Log:          lg.Named("orders"),
		Name:         name,
		StoreTimeout: cfg.StoreTimeout,
	}
	h := &payments.Handler{
		Orders: svc,
		Dedup:  &redisx.Dedup{Redis: rdb, Service: "settler"},
		Log:    lg.Named("payments"),
	}

	lg.Info("settler consumer started",
		zap.String("group", cfg.SettlerGroup),
		zap.String("topic", orders.TopicPaymentsConfirmed),
		zap.Int("workers", cfg.SettlerWorkers),
	)
	// a failed run leaves the stuck offset uncommitted; rejoin and retry it
	for ctx.Err() == nil {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlerGroup, orders.TopicPaymentsConfirmed, cfg.SettlerWorkers, lg)
		if err := cons.Start(ctx, h.HandleMessage); err != nil {
			lg.Error("consumer stopped, restarting", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}

	lg.Info("shutting down settler...")
	prod.Close()
	prod.WaitClosed()
}
