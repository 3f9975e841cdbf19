package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/retail-checkout/internal/cart"
	"github.com/ariefcatur/retail-checkout/internal/checkout"
	"github.com/ariefcatur/retail-checkout/internal/config"
	"github.com/ariefcatur/retail-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/retail-checkout/internal/kafka"
	"github.com/ariefcatur/retail-checkout/internal/logging"
	"github.com/ariefcatur/retail-checkout/internal/memstore"
	"github.com/ariefcatur/retail-checkout/internal/metrics"
	"github.com/ariefcatur/retail-checkout/internal/observability"
	"github.com/ariefcatur/retail-checkout/internal/outbox"
	"github.com/ariefcatur/retail-checkout/internal/port"
	"github.com/ariefcatur/retail-checkout/internal/postgres"
	"github.com/ariefcatur/retail-checkout/internal/redisx"
	"github.com/ariefcatur/retail-checkout/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
	logger.Info("api stopped")
}

type stores struct {
	catalog port.CatalogRepository
	carts   port.CartRepository
	orders  port.OrderRepository
	pool    *pgxpool.Pool // nil with the memory driver
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		s := memstore.New()
		return stores{catalog: s, carts: s, orders: s}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return stores{}, err
	}
	return stores{
		catalog: repository.NewCatalog(pool),
		carts:   repository.NewCart(pool),
		orders:  repository.NewOrder(pool, cfg.ServiceName),
		pool:    pool,
	}, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		logger.Error("tracing disabled", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "api")
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	cur, err := cfg.Currency()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if st.pool != nil {
		defer st.pool.Close()
	}

	orders := &httpx.OrdersHandler{
		Checkout: checkout.New(st.catalog, st.carts, st.orders, logger.Named("checkout"),
			checkout.WithObserver(checkoutMetrics)),
		Orders:  st.orders,
		Timeout: cfg.CheckoutTimeout,
		Logger:  logger,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable yet", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		orders.Redis = rdb
	}

	router := httpx.NewRouter(
		httpx.RouterOptions{
			Logger:         logger,
			Metrics:        serverMetrics.Middleware,
			MetricsHandler: metrics.Handler(reg),
		},
		&httpx.ProductsHandler{Catalog: st.catalog, Currency: cur, Logger: logger},
		&httpx.CartHandler{Cart: cart.New(st.catalog, st.carts), Logger: logger},
		orders,
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if st.pool != nil && len(cfg.KafkaBrokers) > 0 {
		prod := kafkax.NewProducer(cfg.KafkaBrokers)
		defer prod.Close()

		relay := &outbox.Relay{
			Pool:      st.pool,
			Publisher: prod,
			Interval:  cfg.OutboxPollInterval,
			Batch:     cfg.OutboxBatch,
			Logger:    logger.Named("outbox"),
		}
		g.Go(func() error {
			logger.Info("outbox relay started", zap.Strings("brokers", cfg.KafkaBrokers))
			return relay.Run(gctx)
		})
	} else {
		logger.Info("outbox relay disabled")
	}

	return g.Wait()
}
