package app

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/shopflow/shopflow/db"
	"github.com/shopflow/shopflow/internal/domain/user"
	"github.com/shopflow/shopflow/internal/handler"
	"github.com/shopflow/shopflow/internal/storage/postgres"
)

// RunUsers runs the user service over its account store.
func RunUsers(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *UsersConfig) error {
	lg.Info("Initializing user service", zap.String("addr", cfg.Addr))
	if cfg.LegacyPlaintextPasswords {
		lg.Warn("Plaintext password comparison enabled, rehash stored passwords")
	}

	hs := newHealth(lg)
	pool, err := openStore(ctx, cfg.DatabaseURL, db.UserSchema, hs)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := user.NewService(postgres.NewUserRepository(pool), user.PasswordPolicy{
		Cost:            cfg.BcryptCost,
		LegacyPlaintext: cfg.LegacyPlaintextPasswords,
	})
	h := handler.NewUserHandler(svc)
	s := &server{
		name:      "user-service",
		addr:      cfg.Addr,
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
		health:    hs,
		routes:    h.Routes,
	}
	return s.run(ctx, lg, m)
}
