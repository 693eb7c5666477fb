package memory

import (
	"context"
	"encoding/json"
	"sync"

	"traffic-quiz-service/internal/domain"
)

// ResultCache is an in-memory app.LocalResultCache. It stores the JSON
// encoding so the size limit behaves like browser storage.
type ResultCache struct {
	maxBytes int

	mu   sync.RWMutex
	data map[int64][]byte
}

// NewResultCache creates a cache; maxBytes <= 0 disables the size limit.
func NewResultCache(maxBytes int) *ResultCache {
	return &ResultCache{maxBytes: maxBytes, data: make(map[int64][]byte)}
}

func (c *ResultCache) Load(_ context.Context, userID int64) (domain.ResultsByTopic, error) {
	c.mu.RLock()
	raw, ok := c.data[userID]
	c.mu.RUnlock()
	if !ok {
		return domain.ResultsByTopic{}, nil
	}
	var out domain.ResultsByTopic
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ResultCache) Save(_ context.Context, userID int64, results domain.ResultsByTopic) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if c.maxBytes > 0 && len(raw) > c.maxBytes {
		return domain.ErrStorageQuotaExceeded
	}
	c.mu.Lock()
	c.data[userID] = raw
	c.mu.Unlock()
	return nil
}
