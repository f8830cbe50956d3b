package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flemzord/filebot/internal/store"
)

// SearchCache implements store.SearchCache on Redis. Each chat's result
// list is one JSON value whose expiry Redis enforces.
type SearchCache struct {
	client goredis.UniversalClient
	prefix string
}

var _ store.SearchCache = (*SearchCache)(nil)

// NewSearchCache wraps client. Keys are prefix + chat ID.
func NewSearchCache(client goredis.UniversalClient, prefix string) *SearchCache {
	return &SearchCache{client: client, prefix: prefix}
}

func (c *SearchCache) key(chatID int64) string {
	return c.prefix + strconv.FormatInt(chatID, 10)
}

// Put implements store.SearchCache. A non-positive ttl drops the entry.
func (c *SearchCache) Put(ctx context.Context, chatID int64, docs []store.Document, ttl time.Duration) error {
	if ttl <= 0 {
		if err := c.client.Del(ctx, c.key(chatID)).Err(); err != nil {
			return fmt.Errorf("redis: delete search results: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("redis: marshal search results: %w", err)
	}
	if err := c.client.Set(ctx, c.key(chatID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: store search results: %w", err)
	}
	return nil
}

// Get implements store.SearchCache. Missing or expired entries report
// store.ErrNotFound.
func (c *SearchCache) Get(ctx context.Context, chatID int64) ([]store.Document, error) {
	payload, err := c.client.Get(ctx, c.key(chatID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load search results: %w", err)
	}
	var docs []store.Document
	if err := json.Unmarshal(payload, &docs); err != nil {
		return nil, fmt.Errorf("redis: decode search results: %w", err)
	}
	return docs, nil
}
