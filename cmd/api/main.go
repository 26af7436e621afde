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

	"github.com/ariefcatur/go-pixel-market.git/internal/config"
	"github.com/ariefcatur/go-pixel-market.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-pixel-market.git/internal/kafka"
	"github.com/ariefcatur/go-pixel-market.git/internal/logger"
	"github.com/ariefcatur/go-pixel-market.git/internal/monitoring"
	"github.com/ariefcatur/go-pixel-market.git/internal/orders"
	"github.com/ariefcatur/go-pixel-market.git/internal/postgres"
	"github.com/ariefcatur/go-pixel-market.git/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	lg, err := logger.New(cfg.Environment, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]httpx.HealthFunc{}

	// Store
	var store orders.Store
	switch cfg.Store {
	case "memory":
		lg.Warn("using in-memory store, state is lost on restart")
		store = orders.NewMemoryStore()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
		if err != nil {
			lg.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, orders.TotalPixels); err != nil {
			lg.Fatal("db migrate", zap.Error(err))
		}
		store = &postgres.Store{DB: db}
		checks["postgres"] = func(r *http.Request) error { return db.Ping(r.Context()) }
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	checks["redis"] = func(r *http.Request) error { return redisx.HealthCheck(r.Context(), rdb) }

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrders, 1024, lg)
	prod.Start(ctx)

	monitor := monitoring.NewMonitor()
	svc := &orders.Service{
		Store:        store,
		Events:       &kafkax.EventPublisher{Producer: prod},
		Monitor:      monitor,
		Log:          lg.Named("orders"),
		Name:         cfg.ServiceName,
		OrderTTL:     cfg.OrderTTL,
		StoreTimeout: cfg.StoreTimeout,
		MaxPixels:    cfg.MaxPixelsPerOrder,
	}
	query := &orders.Query{
		Store:     store,
		Cache:     &redisx.QueryCache{Redis: rdb},
		CacheTTL:  cfg.QueryCacheTTL,
		Monitor:   monitor,
		Log:       lg.Named("query"),
		UnitPrice: cfg.PixelPrice,
		Currency:  cfg.Currency,
	}

	router := httpx.NewRouter(lg, checks)
	(&httpx.OrdersHandler{Service: svc, Query: query}).Register(router)
	if cfg.AdminPasswordHash == "" {
		lg.Warn("ADMIN_PASSWORD_HASH not set, admin API rejects every request")
	}
	(&httpx.AdminHandler{Service: svc, Query: query, PasswordHash: []byte(cfg.AdminPasswordHash)}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		lg.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox, loop flushes and closes the writer
	prod.WaitClosed() // drain
}
