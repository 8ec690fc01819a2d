package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/core/domain"
)

const (
	keyPrefix  = "reel:code:"
	defaultTTL = time.Hour
	opTimeout  = 2 * time.Second
)

// ItemCache is a read-through cache of code -> item. Every failure is
// treated as a miss; the store stays the source of truth.
type ItemCache struct {
	client *goredis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewItemCache accepts either a redis:// URL or a bare host:port.
func NewItemCache(redisURL string, ttl time.Duration, log *zap.Logger) (*ItemCache, error) {
	var opt *goredis.Options
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		parsed, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &goredis.Options{Addr: redisURL}
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.DialTimeout = 3 * time.Second
	opt.ReadTimeout = opTimeout
	opt.WriteTimeout = opTimeout

	client := goredis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ItemCache{client: client, ttl: ttl, log: log}, nil
}

func (c *ItemCache) Close() error {
	return c.client.Close()
}

func (c *ItemCache) Get(ctx context.Context, code string) (*domain.Item, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	b, err := c.client.Get(ctx, keyPrefix+code).Bytes()
	if err == goredis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Debug("cache get failed", zap.String("code", code), zap.Error(err))
		return nil, false
	}

	var item domain.Item
	if err := json.Unmarshal(b, &item); err != nil {
		c.log.Warn("cache entry corrupt, evicting", zap.String("code", code), zap.Error(err))
		if err := c.Invalidate(ctx, code); err != nil {
			c.log.Warn("evict failed", zap.Error(err))
		}
		return nil, false
	}
	return &item, true
}

func (c *ItemCache) Set(ctx context.Context, item *domain.Item) {
	b, err := json.Marshal(item)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Set(ctx, keyPrefix+item.Code, b, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("code", item.Code), zap.Error(err))
	}
}

func (c *ItemCache) Invalidate(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", code, err)
	}
	return nil
}
