package user

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDirectory counts Lookups reaching the backing directory.
type countingDirectory struct {
	Directory
	calls atomic.Int32
}

func (c *countingDirectory) Lookup(ctx context.Context, uid string) (Info, error) {
	c.calls.Add(1)
	return c.Directory.Lookup(ctx, uid)
}

func newCache(t *testing.T) (*CachedDirectory, *countingDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingDirectory{Directory: NewMemoryDirectory(ParseInfo("42", "Ada <ada@example.com>"))}
	return NewCachedDirectory(next, client, time.Minute, nil), next, mr
}

func TestCachedDirectory_HitAfterMiss(t *testing.T) {
	t.Parallel()
	c, next, mr := newCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := c.Lookup(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "Ada", info.Name)
	}
	assert.Equal(t, int32(1), next.calls.Load())
	assert.True(t, mr.Exists("user:info:42"))
	assert.Equal(t, time.Minute, mr.TTL("user:info:42"))
}

func TestCachedDirectory_MissesAreNotCached(t *testing.T) {
	t.Parallel()
	c, next, mr := newCache(t)

	for i := 0; i < 2; i++ {
		_, err := c.Lookup(context.Background(), "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
	}
	assert.Equal(t, int32(2), next.calls.Load())
	assert.False(t, mr.Exists("user:info:nope"))
}

func TestCachedDirectory_RedisDownFallsThrough(t *testing.T) {
	t.Parallel()
	c, next, mr := newCache(t)
	mr.Close()

	info, err := c.Lookup(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachedDirectory_MalformedEntryIsReplaced(t *testing.T) {
	t.Parallel()
	c, next, mr := newCache(t)
	require.NoError(t, mr.Set("user:info:42", "{not json"))

	info, err := c.Lookup(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Ada", info.Name)
	assert.Equal(t, int32(1), next.calls.Load())

	require.NoError(t, c.Invalidate(context.Background(), "42"))
	assert.False(t, mr.Exists("user:info:42"))
}
