// Package config loads the tick book service configuration from YAML files
// and TICKBOOK_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Aidin1998/tickbook/internal/trading/model"
)

const envPrefix = "TICKBOOK"

var validate = validator.New()

// Snapshot drivers
const (
	DriverBadger   = "badger"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverNone     = "none"
)

// Config holds the configuration of one tick book process
type Config struct {
	LogLevel string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Market   model.Market   `mapstructure:"market"`
	Book     BookConfig     `mapstructure:"book"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// BookConfig tunes the order book and the engine driving it
type BookConfig struct {
	TradeHistory   int           `mapstructure:"trade_history" validate:"gt=0"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
	PurgeFilled    bool          `mapstructure:"purge_filled"`
}

// KafkaConfig describes the ingress topic
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic" validate:"required_if=Enabled true"`
	GroupID  string   `mapstructure:"group_id"`
	MinBytes int      `mapstructure:"min_bytes" validate:"gte=0"`
	MaxBytes int      `mapstructure:"max_bytes" validate:"gtefield=MinBytes"`
}

// HTTPConfig describes the diagnostic HTTP server
type HTTPConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Addr         string   `mapstructure:"addr" validate:"required_if=Enabled true"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("market.price_tag", "BTC")
	v.SetDefault("market.quantity_tag", "MC")

	v.SetDefault("book.trade_history", 100)
	v.SetDefault("book.expiry_interval", time.Second)
	v.SetDefault("book.purge_filled", true)

	v.SetDefault("snapshot.driver", DriverBadger)
	v.SetDefault("snapshot.path", "./data/ticks")
	v.SetDefault("snapshot.dsn", "")
	v.SetDefault("snapshot.interval", time.Minute)
	v.SetDefault("snapshot.pool.max_open_conns", 4)
	v.SetDefault("snapshot.pool.max_idle_conns", 2)
	v.SetDefault("snapshot.pool.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("snapshot.redis.addr", "localhost:6379")
	v.SetDefault("snapshot.redis.password", "")
	v.SetDefault("snapshot.redis.db", 0)
	v.SetDefault("snapshot.redis.key", "tickbook:ticks")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market.ticks")
	v.SetDefault("kafka.group_id", "tickbook")
	v.SetDefault("kafka.min_bytes", 1)
	v.SetDefault("kafka.max_bytes", 10_000_000)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allow_origins", []string{"*"})
}

// Load reads the first existing files among paths, merged in order, then
// applies environment overrides and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	setDefaults(v)

	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Market.PriceTag == "" || c.Market.QuantityTag == "" {
		return fmt.Errorf("market.price_tag and market.quantity_tag are required")
	}
	if c.Book.ExpiryInterval <= 0 {
		return fmt.Errorf("book.expiry_interval must be positive, got %s", c.Book.ExpiryInterval)
	}
	if err := c.Snapshot.Validate(); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
