package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

var _ repo.SSLStore = (*SSLCache)(nil)

// SSLCache stores one JSON SSLInfo per target under "ssl:<id>". A TTL of zero
// keeps entries until the target is removed.
type SSLCache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewSSLCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log *zap.Logger) (*SSLCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log.Info("connected to redis", zap.String("addr", addr), zap.Int("db", db))
	return &SSLCache{rdb: rdb, ttl: ttl, log: log}, nil
}

func (c *SSLCache) Close() error { return c.rdb.Close() }

func sslKey(id domain.TargetID) string { return "ssl:" + string(id) }

func (c *SSLCache) PutSSL(ctx context.Context, info domain.SSLInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal ssl info: %w", err)
	}
	if err := c.rdb.Set(ctx, sslKey(info.TargetID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store ssl info: %w", err)
	}
	return nil
}

func (c *SSLCache) GetSSL(ctx context.Context, id domain.TargetID) (*domain.SSLInfo, error) {
	data, err := c.rdb.Get(ctx, sslKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ssl info: %w", err)
	}
	var info domain.SSLInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ssl info: %w", err)
	}
	return &info, nil
}

func (c *SSLCache) DeleteSSL(ctx context.Context, id domain.TargetID) error {
	if err := c.rdb.Del(ctx, sslKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete ssl info: %w", err)
	}
	return nil
}
