package app

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopflow/shopflow/db"
	"github.com/shopflow/shopflow/internal/client"
	"github.com/shopflow/shopflow/internal/domain/order"
	"github.com/shopflow/shopflow/internal/handler"
	"github.com/shopflow/shopflow/internal/storage/cache"
	"github.com/shopflow/shopflow/internal/storage/postgres"
	"github.com/shopflow/shopflow/pkg/health"
)

// RunOrders runs the order service: the orchestrator over its own order
// store and the remote product, user, cart and notification services.
func RunOrders(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *OrdersConfig) error {
	lg.Info("Initializing order service", zap.String("addr", cfg.Addr))

	hs := newHealth(lg)
	pool, err := openStore(ctx, cfg.DatabaseURL, db.OrderSchema, hs)
	if err != nil {
		return err
	}
	defer pool.Close()

	var orders order.Repository = postgres.NewOrderRepository(pool)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.WithFailureThreshold(5))
		orders = cache.NewOrderRepository(orders, rdb, cfg.Redis.TTL)
		lg.Info("Order cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	hc := client.NewHTTPClient(cfg.Services.Timeout)
	users := client.NewUserClient(cfg.Services.UserURL, hc)
	opts := []order.Option{
		order.WithMeter(m.MeterProvider().Meter("shopflow/order")),
		order.WithProfileSaver(users),
	}
	if cfg.Services.CartURL != "" {
		opts = append(opts, order.WithCart(client.NewCartClient(cfg.Services.CartURL, hc)))
	}
	if cfg.Services.NotificationURL != "" {
		opts = append(opts, order.WithNotifier(client.NewNotificationClient(cfg.Services.NotificationURL, hc)))
	}

	svc, err := order.NewService(
		orders,
		client.NewProductClient(cfg.Services.ProductURL, hc),
		users,
		order.Config{
			StrictAuthorization: cfg.StrictAuthorization,
			MinDeliveryLead:     cfg.MinDeliveryLead,
			CompensationTimeout: cfg.CompensationTimeout,
		},
		opts...,
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	if !cfg.StrictAuthorization {
		lg.Warn("Strict authorization disabled, any resolvable user may order")
	}

	// Downstream outages make orders fail, so they gate readiness, but only
	// after several consecutive misses.
	for name, base := range map[string]string{
		"product-service": cfg.Services.ProductURL,
		"user-service":    cfg.Services.UserURL,
	} {
		hs.AddReadinessCheck(name, 2*time.Second,
			health.HTTPCheck(hc, strings.TrimRight(base, "/")+"/livez"),
			health.WithFailureThreshold(5),
		)
	}

	h := handler.NewOrderHandler(svc)
	s := &server{
		name:      "order-service",
		addr:      cfg.Addr,
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
		health:    hs,
		routes:    h.Routes,
	}
	return s.run(ctx, lg, m)
}
