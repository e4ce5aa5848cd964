package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const redisKeyPrefix = "registry:"

// RedisRegistry stores each instance under registry:<service>:<id> with a
// TTL. An instance that stops heartbeating expires on its own.
type RedisRegistry struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
}

// NewRedisRegistry returns a registry backed by client. cb may be shared
// with the Redis health probe.
func NewRedisRegistry(client *redis.Client, cb *gobreaker.CircuitBreaker, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, cb: cb, ttl: ttl}
}

func redisKey(service, id string) string {
	return redisKeyPrefix + service + ":" + id
}

func (r *RedisRegistry) Register(ctx context.Context, inst Instance) error {
	if err := inst.validate(); err != nil {
		return err
	}
	data, err := inst.encode()
	if err != nil {
		return err
	}

	_, err = r.cb.Execute(func() (any, error) {
		return nil, r.client.Set(ctx, redisKey(inst.Service, inst.ID), data, r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("registering %s/%s: %w", inst.Service, inst.ID, err)
	}
	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, inst Instance) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, r.client.Del(ctx, redisKey(inst.Service, inst.ID)).Err()
	})
	if err != nil {
		return fmt.Errorf("deregistering %s/%s: %w", inst.Service, inst.ID, err)
	}
	return nil
}

// Resolve scans for the service's keys and loads them in one MGET. Entries
// that expire between the scan and the read are skipped.
func (r *RedisRegistry) Resolve(ctx context.Context, service string) ([]Instance, error) {
	res, err := r.cb.Execute(func() (any, error) {
		keys, err := r.scan(ctx, redisKey(service, "*"))
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return []any(nil), nil
		}
		return r.client.MGet(ctx, keys...).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", service, err)
	}

	values, _ := res.([]any)
	out := make([]Instance, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		inst, err := decodeInstance([]byte(raw))
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed registry entry", "service", service, "err", err)
			continue
		}
		out = append(out, inst)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", service, ErrNoInstances)
	}
	sortInstances(out)
	return out, nil
}

func (r *RedisRegistry) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return keys, nil
			}
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
