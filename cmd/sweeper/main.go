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
	"github.com/ariefcatur/go-pixel-market.git/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	lg, err := logger.New(cfg.Environment, cfg.ServiceName+"-sweeper")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 2)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrders, 256, lg)
	prod.Start(context.Background())

	svc := &orders.Service{
		Store:        &postgres.Store{DB: db},
		Events:       &kafkax.EventPublisher{Producer: prod},
		Monitor:      monitoring.NewMonitor(),
		Log:          lg.Named("orders"),
		Name:         cfg.ServiceName + "-sweeper",
		OrderTTL:     cfg.OrderTTL,
		StoreTimeout: cfg.StoreTimeout,
	}

	lg.Info("sweeper started", zap.Duration("interval", cfg.SweepInterval))
	run(ctx, svc, cfg.SweepInterval, lg)

	lg.Info("shutting down sweeper...")
	prod.Close()
	prod.WaitClosed()
}

// run sweeps immediately and then on every tick until ctx is done. A failed
// sweep is logged; the next tick tries again.
func run(ctx context.Context, svc *orders.Service, every time.Duration, lg *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		n, err := svc.SweepDue(ctx)
		switch {
		case err != nil:
			lg.Error("sweep failed", zap.Error(err))
		case n > 0:
			lg.Info("sweep expired orders", zap.Int("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
