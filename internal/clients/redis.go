package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
)

const redisProbeName = "redis"

// redisPinger is the interface used by RedisClient for health probing.
// It is implemented by the real go-redis client and by test doubles.
type redisPinger interface {
	PingResult(ctx context.Context) (string, error)
}

// realRedisPinger adapts *redis.Client to redisPinger so tests can inject a
// fake without constructing a *redis.StatusCmd.
type realRedisPinger struct {
	client *redis.Client
}

func (r *realRedisPinger) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

// RedisClient owns the go-redis client shared by the registry and the user
// cache, and exposes a breaker-wrapped Probe.
type RedisClient struct {
	cb     *gobreaker.CircuitBreaker
	client *redis.Client
	pinger redisPinger
}

// NewRedisClient creates a RedisClient. go-redis dials lazily, so no
// connection is opened here.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisClient{
		cb:     cb,
		client: client,
		pinger: &realRedisPinger{client: client},
	}
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(client *redis.Client, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		cb:     cb,
		client: client,
		pinger: &realRedisPinger{client: client},
	}
}

// Client returns the underlying go-redis client.
func (c *RedisClient) Client() *redis.Client {
	return c.client
}

// Breaker returns the circuit breaker shared by every Redis call.
func (c *RedisClient) Breaker() *gobreaker.CircuitBreaker {
	return c.cb
}

// Probe sends PING and validates the PONG response. After 3 consecutive
// failures the breaker opens and calls return "circuit open" immediately.
func (c *RedisClient) Probe(ctx context.Context) health.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		val, err := c.pinger.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return probeResult(redisProbeName, start, err)
}

// Close closes the go-redis client.
func (c *RedisClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
