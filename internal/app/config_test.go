package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/desk",
		Auth:        AuthConfig{Secret: "s3cret"},
		RateLimit:   RateLimitConfig{Max: 100, Window: time.Minute},
	}
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr, Kafka: KafkaConfig{Brokers: []string{"", " k1:9092 ", ""}}}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.Addr)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, []string{"k1:9092"}, cfg.Kafka.Brokers)
}

func TestConfig_PlatformDefaultsKeepExplicit(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "Valid", mutate: func(*Config) {}},
		{name: "NoDatabase", mutate: func(c *Config) { c.DatabaseURL = "" }, want: "database URL is required"},
		{name: "NoSecret", mutate: func(c *Config) { c.Auth.Secret = "" }, want: "token secret is required"},
		{name: "BadRateLimit", mutate: func(c *Config) { c.RateLimit.Max = 0 }, want: "invalid rate limit"},
		{name: "KafkaNoTopic", mutate: func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, want: "kafka topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
