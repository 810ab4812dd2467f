package config

import (
	"fmt"
	"time"
)

// PoolConfig holds database connection pooling settings
type PoolConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings and the key of the snapshot list
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// SnapshotConfig selects where resting ticks are checkpointed.
// Path is used by badger and sqlite, DSN by postgres.
type SnapshotConfig struct {
	Driver   string        `mapstructure:"driver" validate:"oneof=badger sqlite postgres redis none"`
	Path     string        `mapstructure:"path"`
	DSN      string        `mapstructure:"dsn"`
	Interval time.Duration `mapstructure:"interval"`
	Pool     PoolConfig    `mapstructure:"pool"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

func (s *SnapshotConfig) Validate() error {
	switch s.Driver {
	case DriverNone:
		return nil
	case DriverBadger, DriverSQLite:
		if s.Path == "" {
			return fmt.Errorf("snapshot.path is required for driver %s", s.Driver)
		}
	case DriverPostgres:
		if s.DSN == "" {
			return fmt.Errorf("snapshot.dsn is required for driver %s", s.Driver)
		}
	case DriverRedis:
		if s.Redis.Addr == "" || s.Redis.Key == "" {
			return fmt.Errorf("snapshot.redis.addr and snapshot.redis.key are required")
		}
	default:
		return fmt.Errorf("unknown snapshot.driver %q", s.Driver)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("snapshot.interval must be positive, got %s", s.Interval)
	}
	return nil
}
