package memory

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// ExplanationCache is an in-memory app.ExplanationCache with per-entry TTL.
type ExplanationCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedText
}

type cachedText struct {
	text      string
	expiresAt time.Time
}

func NewExplanationCache(ttl time.Duration) *ExplanationCache {
	return &ExplanationCache{
		ttl:     ttl,
		clock:   time.Now,
		entries: make(map[string]cachedText),
	}
}

func (c *ExplanationCache) Get(_ context.Context, userID int64, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[c.key(userID, key)]
	if !ok {
		return "", false, nil
	}
	if c.ttl > 0 && !entry.expiresAt.After(c.clock()) {
		return "", false, nil
	}
	return entry.text, true, nil
}

func (c *ExplanationCache) Put(_ context.Context, userID int64, key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(userID, key)] = cachedText{text: text, expiresAt: c.clock().Add(c.ttl)}
	return nil
}

func (c *ExplanationCache) key(userID int64, key string) string {
	return strconv.FormatInt(userID, 10) + ":" + key
}
