package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tasksync-api/domain"
)

type backend interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	ImportTask(ctx context.Context, task domain.Task) (domain.Task, error)
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	FindTaskByEventID(ctx context.Context, eventID string) (domain.Task, bool, error)
	EnqueueImportNotice(ctx context.Context, notice domain.ImportNotice) error
}

// Cache wraps a Storage instance with Redis-backed caching for per-user task
// lists. Writes for a user evict that user's cached list.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.UserID)
	return created, nil
}

func (c *Cache) ImportTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	imported, err := c.base.ImportTask(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, imported.UserID)
	return imported, nil
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, userID, tasks)
	return tasks, nil
}

// FindTaskByEventID is never cached: the sync engine's dedup check must see
// the store's current state.
func (c *Cache) FindTaskByEventID(ctx context.Context, eventID string) (domain.Task, bool, error) {
	return c.base.FindTaskByEventID(ctx, eventID)
}

func (c *Cache) EnqueueImportNotice(ctx context.Context, notice domain.ImportNotice) error {
	return c.base.EnqueueImportNotice(ctx, notice)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}
