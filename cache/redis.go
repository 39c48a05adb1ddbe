package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-svc/config"
	"storefront-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

func InitRedis(cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

// ProductCache is a read-through cache of products keyed by id. A nil redis
// client disables caching; concurrent misses for one id share a single load.
type ProductCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

func NewProductCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl, logger: logger}
}

// loadTimeout bounds a shared load once the caller that started it is gone.
const loadTimeout = 10 * time.Second

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// Get returns the cached product, or calls load on a miss and caches its result.
// The bool reports a cache hit.
func (c *ProductCache) Get(ctx context.Context, id string, load func(context.Context) (*models.Product, error)) (*models.Product, bool, error) {
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
		if err == nil {
			var p models.Product
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, true, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Product cache read failed", zap.String("product_id", id), zap.Error(err))
		}
	}

	// The shared load outlives any one caller; each caller stops waiting
	// when its own context ends.
	ch := c.group.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return load(loadCtx)
	})
	var p *models.Product
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		p = res.Val.(*models.Product)
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	if c.rdb != nil {
		data, err := json.Marshal(p)
		if err == nil {
			err = c.rdb.Set(ctx, productKey(id), data, c.ttl).Err()
		}
		if err != nil {
			c.logger.Warn("Product cache write failed", zap.String("product_id", id), zap.Error(err))
		}
	}
	return p, false, nil
}

// Invalidate drops the given products. Failures are logged, not returned:
// entries expire on their own after the TTL.
func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) {
	if c.rdb == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Product cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
