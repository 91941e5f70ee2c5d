package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (DESK_ prefix), flags, a .env file or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (DESK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Orders      OrdersConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls account passwords and bearer tokens.
type AuthConfig struct {
	Secret     string        `usage:"HMAC secret for signing tokens (DESK_AUTH_SECRET)" flag:"auth-secret"`
	AccessTTL  time.Duration `default:"15m" usage:"Access token lifetime" flag:"access-ttl"`
	RefreshTTL time.Duration `default:"24h" usage:"Refresh token lifetime" flag:"refresh-ttl"`
	BcryptCost int           `default:"10" usage:"bcrypt cost for password hashes" flag:"bcrypt-cost"`
}

// OrdersConfig tunes the order workflow.
type OrdersConfig struct {
	AllowInactivePromo bool `default:"false" usage:"Accept promo codes outside their activity window" flag:"allow-inactive-promo"`
}

// RedisConfig enables Idempotency-Key support on order placement.
type RedisConfig struct {
	Addr           string        `default:"" usage:"Redis host:port or redis:// URL; empty disables idempotency keys" flag:"redis-addr"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long idempotency keys are remembered" flag:"idempotency-ttl"`
}

// KafkaConfig enables order event publishing.
type KafkaConfig struct {
	Brokers []string `default:"" usage:"Kafka brokers; empty disables order events" flag:"kafka-brokers"`
	Topic   string   `default:"order-events" usage:"Topic order events are written to" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
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

// LoadConfig loads configuration from a .env file, environment variables and
// YAML config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; the environment may be set elsewhere.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "DESK",
		Files:     []string{"config.yaml", "/etc/order-desk/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set DESK_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.Secret == "" {
		return errors.New("token secret is required: set DESK_AUTH_SECRET")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.Errorf("invalid rate limit %d per %s", c.RateLimit.Max, c.RateLimit.Window)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's DESK_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Kafka.Brokers = compact(c.Kafka.Brokers)
}

// compact drops blank entries left by an empty or trailing-comma list.
func compact(list []string) []string {
	out := list[:0]
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
