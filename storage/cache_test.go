package storage

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Anuvesh07/Planicorn/domain"
)

func setupCache(t *testing.T, base backend, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, ttl), mr
}

type countingStore struct {
	*MemoryStore
	listAllCalls int
}

func (c *countingStore) ListAll(ctx context.Context, ownerID string) ([]domain.Task, error) {
	c.listAllCalls++
	return c.MemoryStore.ListAll(ctx, ownerID)
}

func TestCacheListMissThenHit(t *testing.T) {
	base := &countingStore{MemoryStore: NewMemoryStore()}
	cache, mr := setupCache(t, base, time.Minute)
	ctx := context.Background()

	if _, err := base.Create(ctx, "owner", domain.Draft{Title: "cached"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 3; i++ {
		tasks, total, err := cache.List(ctx, "owner", Filter{}, 1, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 1 || len(tasks) != 1 || tasks[0].Title != "cached" {
			t.Fatalf("unexpected listing: total=%d tasks=%+v", total, tasks)
		}
	}
	if base.listAllCalls != 1 {
		t.Fatalf("expected 1 backend call, got %d", base.listAllCalls)
	}
	if ttl := mr.TTL(tasksCacheKey("owner")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheMutationsEvict(t *testing.T) {
	base := &countingStore{MemoryStore: NewMemoryStore()}
	cache, mr := setupCache(t, base, time.Minute)
	ctx := context.Background()

	task, err := cache.Create(ctx, "owner", domain.Draft{Title: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := cache.List(ctx, "owner", Filter{}, 1, 10); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !mr.Exists(tasksCacheKey("owner")) {
		t.Fatal("expected cache populated after list")
	}

	title := "renamed"
	if _, err := cache.Update(ctx, "owner", task.ID, domain.Patch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists(tasksCacheKey("owner")) {
		t.Fatal("expected cache evicted after update")
	}

	tasks, _, err := cache.List(ctx, "owner", Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks[0].Title != "renamed" {
		t.Fatalf("expected fresh read after eviction, got %q", tasks[0].Title)
	}

	if _, err := cache.Delete(ctx, "owner", task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(tasksCacheKey("owner")) {
		t.Fatal("expected cache evicted after delete")
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	base := &countingStore{MemoryStore: NewMemoryStore()}
	cache, mr := setupCache(t, base, time.Minute)
	ctx := context.Background()

	if _, err := base.Create(ctx, "owner", domain.Draft{Title: "real"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mr.Set(tasksCacheKey("owner"), "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tasks, total, err := cache.List(ctx, "owner", Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || tasks[0].Title != "real" {
		t.Fatalf("expected fallback to backend, got %+v", tasks)
	}
	if base.listAllCalls != 1 {
		t.Fatalf("expected backend consulted once, got %d", base.listAllCalls)
	}
}

func TestCacheScopesOwners(t *testing.T) {
	base := &countingStore{MemoryStore: NewMemoryStore()}
	cache, _ := setupCache(t, base, time.Minute)
	ctx := context.Background()

	if _, err := base.Create(ctx, "alice", domain.Draft{Title: "hers"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := cache.List(ctx, "alice", Filter{}, 1, 10); err != nil {
		t.Fatalf("list: %v", err)
	}

	tasks, total, err := cache.List(ctx, "bob", Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 || len(tasks) != 0 {
		t.Fatalf("expected empty board for bob, got %+v", tasks)
	}
}
