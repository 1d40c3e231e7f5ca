package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss возвращается, когда ключа нет в кэше
var ErrMiss = errors.New("cache miss")

type CacheService struct {
	redisClient redis.Cmdable
	prefix      string
}

func NewCacheService(redisClient redis.Cmdable, prefix string) *CacheService {
	return &CacheService{
		redisClient: redisClient,
		prefix:      prefix,
	}
}

func (c *CacheService) key(key string) string {
	return c.prefix + key
}

// Get получает значение из кэша
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.redisClient.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(data), dest)
}

// Set сохраняет значение в кэш
func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redisClient.Set(ctx, c.key(key), string(data), ttl).Err()
}

// Delete удаляет значение из кэша
func (c *CacheService) Delete(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, c.key(key)).Err()
}

// Exists проверяет существование ключа
func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.redisClient.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// GetOrSet получает значение из кэша или вычисляет и сохраняет новое.
// Ошибка записи в кэш не мешает вернуть вычисленное значение.
func GetOrSet[T any](ctx context.Context, c *CacheService, key string, ttl time.Duration, setter func() (T, error)) (T, error) {
	var cached T
	if c != nil {
		if err := c.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	value, err := setter()
	if err != nil {
		return value, err
	}

	if c != nil {
		_ = c.Set(ctx, key, value, ttl)
	}

	return value, nil
}
