package app

import (
	"net"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// OrdersConfig configures the order service. Environment variables use the
// ORDERS_ prefix.
type OrdersConfig struct {
	Addr                string        `default:"0.0.0.0:8081" usage:"Order service listen address"`
	DatabaseURL         string        `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	StrictAuthorization bool          `default:"true" usage:"Require the user store permission check before placing orders" flag:"strict-authorization"`
	MinDeliveryLead     time.Duration `default:"48h" usage:"Minimum lead time of a requested delivery date" flag:"min-delivery-lead"`
	CompensationTimeout time.Duration `default:"10s" usage:"Time budget of the rollback after a failed stock update" flag:"compensation-timeout"`
	Services            ServicesConfig
	Redis               RedisConfig
	RateLimit           RateLimitConfig
	CORS                CORSConfig
	Graceful            GracefulConfig
}

// ProductsConfig configures the product service. Environment variables use
// the PRODUCTS_ prefix.
type ProductsConfig struct {
	Addr        string `default:"0.0.0.0:8082" usage:"Product service listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PRODUCTS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// UsersConfig configures the user service. Environment variables use the
// USERS_ prefix.
type UsersConfig struct {
	Addr                     string `default:"0.0.0.0:8083" usage:"User service listen address"`
	DatabaseURL              string `usage:"PostgreSQL connection URL (USERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BcryptCost               int    `default:"10" usage:"bcrypt work factor for new password hashes" flag:"bcrypt-cost"`
	LegacyPlaintextPasswords bool   `default:"false" usage:"Accept stored plaintext passwords (migration only, insecure)" flag:"legacy-plaintext-passwords"`
	RateLimit                RateLimitConfig
	CORS                     CORSConfig
	Graceful                 GracefulConfig
}

// ServicesConfig locates the collaborators of the order service. An empty
// cart or notification URL disables that side effect.
type ServicesConfig struct {
	ProductURL      string        `default:"http://localhost:8082" usage:"Product service base URL" flag:"product-url"`
	UserURL         string        `default:"http://localhost:8083" usage:"User service base URL" flag:"user-url"`
	CartURL         string        `default:"" usage:"Cart service base URL" flag:"cart-url"`
	NotificationURL string        `default:"" usage:"Notification service base URL" flag:"notification-url"`
	Timeout         time.Duration `default:"5s" usage:"Per-call timeout for collaborator requests" flag:"services-timeout"`
}

// RedisConfig controls the order read cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address (host:port)" flag:"redis-addr"`
	Password string        `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int           `default:"0" usage:"Redis database number" flag:"redis-db"`
	TTL      time.Duration `default:"5m" usage:"Order cache entry lifetime" flag:"redis-ttl"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// Trusted lists networks of sibling services. Requests whose connection
	// address falls inside one are not rate limited.
	Trusted []string `usage:"CIDRs exempt from rate limiting" flag:"rate-limit-trusted"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadOrdersConfig loads the order service configuration.
func LoadOrdersConfig() (*OrdersConfig, error) {
	var cfg OrdersConfig
	if err := load(&cfg, "ORDERS", "orders"); err != nil {
		return nil, err
	}
	cfg.Addr = platformAddr(cfg.Addr, "0.0.0.0:8081")
	cfg.DatabaseURL = platformDatabaseURL(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Services.ProductURL == "" || cfg.Services.UserURL == "" {
		return nil, errors.New("product and user service URLs are required")
	}
	return &cfg, nil
}

// LoadProductsConfig loads the product service configuration.
func LoadProductsConfig() (*ProductsConfig, error) {
	var cfg ProductsConfig
	if err := load(&cfg, "PRODUCTS", "products"); err != nil {
		return nil, err
	}
	cfg.Addr = platformAddr(cfg.Addr, "0.0.0.0:8082")
	cfg.DatabaseURL = platformDatabaseURL(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set PRODUCTS_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// LoadUsersConfig loads the user service configuration.
func LoadUsersConfig() (*UsersConfig, error) {
	var cfg UsersConfig
	if err := load(&cfg, "USERS", "users"); err != nil {
		return nil, err
	}
	cfg.Addr = platformAddr(cfg.Addr, "0.0.0.0:8083")
	cfg.DatabaseURL = platformDatabaseURL(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set USERS_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// load reads dst from environment variables with the given prefix, flags and
// the optional YAML files <name>.yaml and /etc/shopflow/<name>.yaml.
func load(dst any, envPrefix, name string) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: envPrefix,
		Files:     []string{name + ".yaml", "/etc/shopflow/" + name + ".yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return errors.Wrapf(err, "load %s config", name)
	}
	return nil
}

// platformDatabaseURL falls back to the DATABASE_URL variable that hosting
// platforms (Railway, Render, etc.) provide.
func platformDatabaseURL(v string) string {
	if v != "" {
		return v
	}
	return os.Getenv("DATABASE_URL")
}

// platformAddr honours a platform-provided PORT unless the address was set
// explicitly.
func platformAddr(addr, def string) string {
	port := os.Getenv("PORT")
	if port == "" || addr != def {
		return addr
	}
	host, _, err := net.SplitHostPort(def)
	if err != nil {
		return addr
	}
	return net.JoinHostPort(host, port)
}
