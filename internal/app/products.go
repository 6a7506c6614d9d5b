package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/shopflow/shopflow/db"
	"github.com/shopflow/shopflow/internal/domain/product"
	"github.com/shopflow/shopflow/internal/handler"
	"github.com/shopflow/shopflow/internal/storage/postgres"
)

// RunProducts runs the product service over its catalog store.
func RunProducts(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *ProductsConfig) error {
	lg.Info("Initializing product service", zap.String("addr", cfg.Addr))

	hs := newHealth(lg)
	pool, err := openStore(ctx, cfg.DatabaseURL, db.ProductSchema, hs)
	if err != nil {
		return err
	}
	defer pool.Close()

	h := handler.NewProductHandler(product.NewService(postgres.NewProductRepository(pool)))
	s := &server{
		name:      "product-service",
		addr:      cfg.Addr,
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
		health:    hs,
		routes:    h.Routes,
		internal:  stockMutation,
	}
	return s.run(ctx, lg, m)
}

// stockMutation matches the stock decrement and restore calls the order
// service makes for every order line.
func stockMutation(r *http.Request) bool {
	if r.Method != http.MethodPut || !strings.HasPrefix(r.URL.Path, "/api/products/") {
		return false
	}
	return strings.HasSuffix(r.URL.Path, "/updateQuantity") || strings.HasSuffix(r.URL.Path, "/restoreQuantity")
}
