// internal/pkg/redis/redis.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 的 UniversalClient。
// 地址配置为单个时走单机模式，逗号分隔多个时走集群模式。
type Client struct {
	rdb redis.UniversalClient
}

// NewClient 创建并校验一个 Redis 客户端。
func NewClient(addrs string) (*Client, error) {
	addrList := strings.Split(addrs, ",")
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: addrList,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addrs, err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级操作的调用方使用。
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// ErrCacheMiss 表示缓存未命中，调用方据此回源数据库。
var ErrCacheMiss = fmt.Errorf("redis: cache miss")
