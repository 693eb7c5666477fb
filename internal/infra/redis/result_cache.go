package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"traffic-quiz-service/internal/domain"
)

// ResultCache keeps each user's result history as one JSON value,
// mirroring the client-side storage slot: SET results:{userID} {json}.
type ResultCache struct {
	client   *redis.Client
	ttl      time.Duration
	maxBytes int
}

func NewResultCache(client *redis.Client, ttl time.Duration, maxBytes int) *ResultCache {
	return &ResultCache{client: client, ttl: ttl, maxBytes: maxBytes}
}

func (c *ResultCache) Load(ctx context.Context, userID int64) (domain.ResultsByTopic, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ResultsByTopic{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out domain.ResultsByTopic
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ResultCache) Save(ctx context.Context, userID int64, results domain.ResultsByTopic) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if c.maxBytes > 0 && len(raw) > c.maxBytes {
		return domain.ErrStorageQuotaExceeded
	}
	return c.client.Set(ctx, c.key(userID), raw, c.ttl).Err()
}

func (c *ResultCache) key(userID int64) string {
	return "results:" + strconv.FormatInt(userID, 10)
}
