package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "user:info:"

// CachedDirectory is a cache-aside layer over another Directory. Redis
// failures degrade to the backing directory; misses are not cached.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedDirectory caches next's results in Redis for ttl.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedDirectory) Lookup(ctx context.Context, uid string) (Info, error) {
	key := cacheKeyPrefix + uid

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info Info
		if jsonErr := json.Unmarshal(data, &info); jsonErr == nil {
			return info, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed cache entry", "uid", uid)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "user cache get failed", "uid", uid, "err", err)
	}

	info, err := c.next.Lookup(ctx, uid)
	if err != nil {
		return Info{}, err
	}

	if data, err := json.Marshal(info); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "user cache set failed", "uid", uid, "err", err)
		}
	}
	return info, nil
}

// Invalidate drops the cached entry for uid.
func (c *CachedDirectory) Invalidate(ctx context.Context, uid string) error {
	return c.client.Del(ctx, cacheKeyPrefix+uid).Err()
}
