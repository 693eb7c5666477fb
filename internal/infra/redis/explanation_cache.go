package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExplanationCache stores AI answers per user so repeat requests are free.
// Keys: ai:{userID}:{requestKey}
type ExplanationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewExplanationCache(client *redis.Client, ttl time.Duration) *ExplanationCache {
	return &ExplanationCache{client: client, ttl: ttl}
}

func (c *ExplanationCache) Get(ctx context.Context, userID int64, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, c.key(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (c *ExplanationCache) Put(ctx context.Context, userID int64, key, text string) error {
	return c.client.Set(ctx, c.key(userID, key), text, c.ttl).Err()
}

func (c *ExplanationCache) key(userID int64, key string) string {
	return "ai:" + strconv.FormatInt(userID, 10) + ":" + key
}
