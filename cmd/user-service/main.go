package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appkg "github.com/shopflow/shopflow/internal/app"
)

func main() {
	_ = godotenv.Load()

	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadUsersConfig()
		if err != nil {
			return err
		}
		return appkg.RunUsers(ctx, lg, m, cfg)
	})
}
