// Package repository holds the snapshot stores of resting ticks. Every store
// implements model.TickStore and replaces the previous snapshot atomically.
package repository

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/config"
	"github.com/Aidin1998/tickbook/internal/trading/model"
)

// Open builds the store selected by cfg.Driver. DriverNone yields nil.
func Open(cfg config.SnapshotConfig, logger *zap.Logger) (model.TickStore, error) {
	var (
		store model.TickStore
		err   error
	)
	switch cfg.Driver {
	case config.DriverBadger:
		store, err = asStore(NewBadgerStore(cfg.Path, logger))
	case config.DriverSQLite:
		store, err = asStore(NewSQLiteStore(cfg.Path, cfg.Pool, logger))
	case config.DriverPostgres:
		store, err = asStore(NewPostgresStore(cfg.DSN, cfg.Pool, logger))
	case config.DriverRedis:
		store, err = asStore(NewRedisStore(cfg.Redis, logger))
	case config.DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// asStore keeps a failed constructor from leaking a typed nil.
func asStore[S model.TickStore](s S, err error) (model.TickStore, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func encodeTick(t *model.Tick) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tick %s: %w", t.OrderID(), err)
	}
	return b, nil
}

func decodeTick(b []byte) (*model.Tick, error) {
	var t model.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	return &t, nil
}
