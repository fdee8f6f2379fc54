package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/order"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (PLATTER_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PLATTER_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile     string `usage:"YAML fixture applied at startup in memory mode" flag:"seed-file"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (PLATTER_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
	Loyalty      LoyaltyConfig
	Orders       OrdersConfig
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Rate  float64 `default:"20" usage:"Sustained requests per second per client"`
	Burst int     `default:"40" usage:"Requests a client may burst above the rate"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoyaltyConfig controls loyalty coupon issuance on fulfillment.
type LoyaltyConfig struct {
	Threshold    string        `default:"100" usage:"Spend since the last loyalty coupon that earns a new one; 0 disables"`
	CouponValue  string        `default:"10" usage:"Fixed discount of a loyalty coupon"`
	CodePrefix   string        `default:"LOYAL" usage:"Prefix of generated loyalty codes"`
	Validity     time.Duration `default:"720h" usage:"How long a loyalty coupon stays valid"`
	CodeAttempts int           `default:"5" usage:"Code generation attempts before giving up"`
}

// OrdersConfig controls order creation.
type OrdersConfig struct {
	InitialStatus string `default:"PENDING" usage:"Status of new orders: PENDING or AWAITING_PAYMENT"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PLATTER",
		Files:     []string{"config.yaml", "/etc/platter/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values aconfig cannot express as tags.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set PLATTER_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.APIKeyPepper == "" {
		return errors.New("api key pepper is required: set PLATTER_API_KEY_PEPPER")
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit rate and burst must be positive")
	}
	if _, err := c.orderConfig(); err != nil {
		return err
	}
	if _, err := c.loyaltyConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Config) orderConfig() (order.Config, error) {
	cfg := order.DefaultConfig()

	s := order.Status(c.Orders.InitialStatus)
	if !s.Initial() {
		return cfg, errors.Errorf("initial status must be %s or %s, got %q",
			order.StatusPending, order.StatusAwaitingPayment, c.Orders.InitialStatus)
	}
	cfg.InitialStatus = s

	threshold, err := decimal.NewFromString(c.Loyalty.Threshold)
	if err != nil {
		return cfg, errors.Wrap(err, "loyalty threshold")
	}
	if threshold.IsNegative() {
		return cfg, errors.New("loyalty threshold cannot be negative")
	}
	cfg.LoyaltyThreshold = threshold
	return cfg, nil
}

func (c *Config) loyaltyConfig() (coupon.LoyaltyConfig, error) {
	cfg := coupon.DefaultLoyalty()

	value, err := decimal.NewFromString(c.Loyalty.CouponValue)
	if err != nil {
		return cfg, errors.Wrap(err, "loyalty coupon value")
	}
	if !value.IsPositive() {
		return cfg, errors.New("loyalty coupon value must be positive")
	}
	if c.Loyalty.CodeAttempts < 1 {
		return cfg, errors.New("loyalty code attempts must be at least 1")
	}
	cfg.Value = value
	cfg.Prefix = coupon.NormalizeCode(c.Loyalty.CodePrefix)
	cfg.Validity = c.Loyalty.Validity
	cfg.Attempts = c.Loyalty.CodeAttempts
	return cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PLATTER_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
