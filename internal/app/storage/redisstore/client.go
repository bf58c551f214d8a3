package redisstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/mintline/edition_layer/internal/app/storage"
)

// client is the subset of Redis commands the store needs. Tests substitute
// an in-process fake.
type client interface {
	// SetNXIndexed writes key only if absent and adds member to the index
	// sorted set in the same transaction.
	SetNXIndexed(ctx context.Context, key string, value []byte, index string, score float64, member string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) (int64, error)
	ZRem(ctx context.Context, key string, member string) error
	ZRangeByScore(ctx context.Context, key string, max float64) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// goRedisClient adapts *redis.Client to client.
type goRedisClient struct {
	rdb *redis.Client
}

func newGoRedisClient(cfg Config) *goRedisClient {
	return &goRedisClient{rdb: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})}
}

func (c *goRedisClient) SetNXIndexed(ctx context.Context, key string, value []byte, index string, score float64, member string) (bool, error) {
	var set *redis.BoolCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, key, value, 0)
		pipe.ZAddNX(ctx, index, &redis.Z{Score: score, Member: member})
		return nil
	})
	if err != nil {
		return false, err
	}
	return set.Val(), nil
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	return b, err
}

func (c *goRedisClient) Del(ctx context.Context, key string) (int64, error) {
	return c.rdb.Del(ctx, key).Result()
}

func (c *goRedisClient) ZRem(ctx context.Context, key string, member string) error {
	return c.rdb.ZRem(ctx, key, member).Err()
}

func (c *goRedisClient) ZRangeByScore(ctx context.Context, key string, max float64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.rdb.Close()
}
