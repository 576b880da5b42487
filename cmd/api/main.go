package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/api"
	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/auth"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/users"
	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/retry"
	"github.com/angelmondragon/marketplace-backend/pkg/security"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	commerceMetrics := metrics.NewCommerceMetrics(registry)

	conn := dbClient.DB()
	clk := clock.System{}
	retryPolicy := retry.FromConfig(cfg.Retry)

	productRepo := products.NewRepository(conn)
	productService, err := products.NewService(productRepo, clk)
	if err != nil {
		return err
	}

	cartRepo := cart.NewRepository(conn)
	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:            cartRepo,
		Tx:              dbClient,
		Catalog:         productService,
		Clock:           clk,
		Retry:           retryPolicy,
		Metrics:         commerceMetrics,
		Logger:          logg,
		MaxLineQuantity: cfg.Cart.MaxLineQuantity,
	})
	if err != nil {
		return err
	}

	addressRepo := address.NewRepository(conn)
	addressService, err := address.NewService(address.ServiceParams{
		Repo:    addressRepo,
		Tx:      dbClient,
		Clock:   clk,
		Retry:   retryPolicy,
		Metrics: commerceMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Carts:     cartRepo,
		Addresses: addressRepo,
		Products:  productRepo,
		Inventory: products.NewInventory(productRepo),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Tx:        dbClient,
		Clock:     clk,
		Retry:     retryPolicy,
		Metrics:   commerceMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	hasher, err := security.NewHasher(cfg.Password)
	if err != nil {
		return err
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  users.NewRepository(conn),
		Hasher:    hasher,
		JWTConfig: cfg.JWT,
		Clock:     clk,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Deps{
		Auth:        authService,
		Products:    productService,
		Cart:        cartService,
		Addresses:   addressService,
		Orders:      orderService,
		Idempotency: redisClient,
		RateLimiter: redisClient,
		ReadinessChecks: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		HTTPMetrics:    metrics.NewHTTPMetrics(registry),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logg.Info(ctx, "starting api server")
	return api.Serve(ctx, api.NewServer(addr, handler), ln, logg)
}
