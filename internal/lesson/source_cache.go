package lesson

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of the Redis client used by CachedSource.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedSource is a read-through Redis cache in front of another Source.
// Cache failures fall through to the wrapped source.
type CachedSource struct {
	next Source
	kv   KV
	ttl  time.Duration
}

// NewCachedSource wraps next. A non-positive ttl defaults to ten minutes.
func NewCachedSource(next Source, kv KV, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedSource{next: next, kv: kv, ttl: ttl}
}

func cacheKey(id string) string {
	return "lesson:" + id
}

func (c *CachedSource) Lesson(ctx context.Context, id string) (*Lesson, error) {
	raw, err := c.kv.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var l Lesson
		if jerr := json.Unmarshal(raw, &l); jerr == nil && len(l.Steps) > 0 {
			return &l, nil
		}
		slog.Warn("discarding unreadable cached lesson", "lesson_id", id)
	case !errors.Is(err, redis.Nil):
		slog.Warn("lesson cache read failed", "lesson_id", id, "error", err)
	}

	l, err := c.next.Lesson(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(l); err == nil {
		if err := c.kv.Set(ctx, cacheKey(id), data, c.ttl).Err(); err != nil {
			slog.Warn("lesson cache write failed", "lesson_id", id, "error", err)
		}
	}
	return l, nil
}
