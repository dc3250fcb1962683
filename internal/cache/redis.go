package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couponhub/internal/config"
	"github.com/couponhub/internal/constants"

	"github.com/redis/go-redis/v9"
)

// RedisCache Redis 缓存封装
// 为 nil 或未启用时所有读操作视为未命中，写操作直接忽略
type RedisCache struct {
	client *redis.Client
	prefix string
}

// InitRedis 根据配置创建 Redis 缓存，未启用时返回 nil
func InitRedis(cfg *config.RedisConfig) (*RedisCache, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCache(client, cfg.Prefix), nil
}

// NewRedisCache 基于已有客户端创建缓存
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = constants.RedisPrefixDefault
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Enabled 判断缓存是否启用
func (c *RedisCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Client 获取 Redis 客户端
func (c *RedisCache) Client() *redis.Client {
	if !c.Enabled() {
		return nil
	}
	return c.client
}

// Prefix 获取 key 前缀
func (c *RedisCache) Prefix() string {
	if c == nil {
		return constants.RedisPrefixDefault
	}
	return c.prefix
}

// Close 关闭连接
func (c *RedisCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// GetJSON 获取 JSON 缓存
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.buildKey(key), payload, ttl).Err()
}

// Del 删除缓存
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, c.buildKey(key))
	}
	return c.client.Del(ctx, full...).Err()
}

// GetInt 读取整数配置项，不存在时 hit 为 false
func (c *RedisCache) GetInt(ctx context.Context, key string) (int, bool, error) {
	if !c.Enabled() {
		return 0, false, nil
	}
	val, err := c.client.Get(ctx, c.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SAdd 添加集合成员
func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	if !c.Enabled() || len(members) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(members))
	for _, m := range members {
		values = append(values, m)
	}
	return c.client.SAdd(ctx, c.buildKey(key), values...).Err()
}

// HGetJSON 读取哈希字段中的 JSON
func (c *RedisCache) HGetJSON(ctx context.Context, key, field string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.client.HGet(ctx, c.buildKey(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// HSetJSON 写入哈希字段
func (c *RedisCache) HSetJSON(ctx context.Context, key, field string, value interface{}) error {
	if !c.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.HSet(ctx, c.buildKey(key), field, payload).Err()
}

func (c *RedisCache) buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return c.prefix
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}
