package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/config"
	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/logger"
)

// RedisStore keeps the snapshot as a Redis list of JSON ticks. Save swaps
// the list inside MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg config.RedisConfig, log *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.Key, log), nil
}

func NewRedisStoreWithClient(client *redis.Client, key string, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, logger: logger.OrNop(log).Named("redis_store")}
}

// Save replaces the stored snapshot with ticks.
func (s *RedisStore) Save(ctx context.Context, ticks []*model.Tick) error {
	values := make([]interface{}, 0, len(ticks))
	for _, t := range ticks {
		b, err := encodeTick(t)
		if err != nil {
			return err
		}
		values = append(values, b)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.RPush(ctx, s.key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", zap.String("key", s.key), zap.Int("ticks", len(ticks)))
	return nil
}

// Load returns the stored ticks in save order.
func (s *RedisStore) Load(ctx context.Context) ([]*model.Tick, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	ticks := make([]*model.Tick, 0, len(raw))
	for _, v := range raw {
		t, err := decodeTick([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
