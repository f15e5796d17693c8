package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Anuvesh07/Planicorn/domain"
)

// Cache wraps a store with Redis-backed caching of each owner's full board.
// Listings are served from the cached board with filtering and pagination
// applied locally; every successful mutation evicts the owner's entry so a
// subsequent fetch is never stale. Redis failures fall back to the backing
// store without surfacing an error.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching decorator around base using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error) {
	t, err := c.base.Create(ctx, ownerID, draft)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) List(ctx context.Context, ownerID string, f Filter, page, pageSize int) ([]domain.Task, int, error) {
	if tasks, ok := c.loadFromCache(ctx, ownerID); ok {
		out, total := paginate(tasks, f, page, pageSize)
		return out, total, nil
	}

	tasks, err := c.base.ListAll(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	c.store(ctx, ownerID, tasks)

	out, total := paginate(tasks, f, page, pageSize)
	return out, total, nil
}

func (c *Cache) Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error) {
	t, err := c.base.Update(ctx, ownerID, taskID, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	t, err := c.base.Delete(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, ownerID)
	return t, nil
}

func (c *Cache) loadFromCache(ctx context.Context, ownerID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, ownerID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}
