// Command seed-db loads the demo catalog and accounts into the product and
// user stores. Both subcommands are idempotent.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shopflow/shopflow/db"
	"github.com/shopflow/shopflow/internal/domain/product"
	"github.com/shopflow/shopflow/internal/domain/user"
	"github.com/shopflow/shopflow/internal/storage/postgres"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
}

type userJSON struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

var (
	databaseURL string
	seedFile    string
	bcryptCost  int

	lg *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "seed-db",
	Short:         "Seed the shopflow product and user stores",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return nil
	},
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Upsert the product catalog by name",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), db.ProductSchema, db.SeedProducts, seedProducts)
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Create the demo accounts that do not exist yet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), db.UserSchema, db.SeedUsers, seedUsers)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	rootCmd.PersistentFlags().StringVar(&seedFile, "file", "", "JSON seed file (defaults to the embedded data)")
	usersCmd.Flags().IntVar(&bcryptCost, "bcrypt-cost", 10, "bcrypt work factor")

	rootCmd.AddCommand(productsCmd, usersCmd)
}

func main() {
	_ = godotenv.Load()
	lg = zap.Must(zap.NewDevelopment())
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func withPool(ctx context.Context, schema string, embedded []byte, seed func(context.Context, *pgxpool.Pool, []byte) error) error {
	data, err := seedData(embedded)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool, schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return seed(ctx, pool, data)
}

func seedData(embedded []byte) ([]byte, error) {
	if seedFile == "" {
		return embedded, nil
	}
	data, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return data, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, data []byte) error {
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	repo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if p.Name == "" || p.Price.IsNegative() || p.Quantity < 0 {
			return errors.Errorf("invalid product %q", p.Name)
		}
		rec := &product.Product{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Quantity:    p.Quantity,
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			return err
		}
		lg.Info("Product seeded", zap.Int64("id", rec.ID), zap.String("name", rec.Name), zap.Int("quantity", rec.Quantity))
	}
	return nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, data []byte) error {
	var users []userJSON
	if err := json.Unmarshal(data, &users); err != nil {
		return errors.Wrap(err, "parse users JSON")
	}

	svc := user.NewService(postgres.NewUserRepository(pool), user.PasswordPolicy{Cost: bcryptCost})
	for _, u := range users {
		s, err := svc.Register(ctx, user.RegisterRequest{
			Username: u.Username,
			Password: u.Password,
			Email:    u.Email,
			FullName: u.FullName,
		})
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			lg.Info("User exists, skipped", zap.String("username", u.Username))
		case err != nil:
			return errors.Wrapf(err, "seed user %q", u.Username)
		default:
			lg.Info("User seeded", zap.Int64("id", s.User.ID), zap.String("username", s.User.Username))
		}
	}
	return nil
}
