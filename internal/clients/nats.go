package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sony/gobreaker"

	"github.com/bng-src/spring-cloud-netflix-demo/internal/config"
	"github.com/bng-src/spring-cloud-netflix-demo/internal/health"
)

const natsProbeName = "nats"

// kvManager is the subset of jetstream.JetStream used for bucket management.
// Defining an interface here allows test doubles without a live NATS server.
type kvManager interface {
	KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error)
	CreateOrUpdateKeyValue(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error)
}

// NATSClient manages the JetStream key-value bucket that backs the service
// registry, and probes NATS health.
type NATSClient struct {
	url    string
	bucket string
	cb     *gobreaker.CircuitBreaker
	dial   func(url string) (kvManager, func(), error)

	mu      sync.Mutex
	js      kvManager
	cleanup func()
}

// NewNATSClient constructs a NATSClient. The connection is opened lazily and
// then shared by ProvisionBucket, Bucket and Probe.
func NewNATSClient(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		url:    cfg.URL,
		bucket: cfg.KVBucket,
		cb:     cb,
		dial:   realDialJetStream,
	}
}

func (c *NATSClient) jetStream() (kvManager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js != nil {
		return c.js, nil
	}
	js, cleanup, err := c.dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	c.js, c.cleanup = js, cleanup
	return js, nil
}

// ProvisionBucket creates the registry bucket or updates it in place with
// the given entry TTL. It is idempotent.
func (c *NATSClient) ProvisionBucket(ctx context.Context, ttl time.Duration) error {
	_, err := c.cb.Execute(func() (any, error) {
		js, err := c.jetStream()
		if err != nil {
			return nil, err
		}
		_, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      c.bucket,
			Description: "service registry instances",
			TTL:         ttl,
			History:     1,
			Storage:     jetstream.MemoryStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("provisioning bucket %s: %w", c.bucket, err)
		}
		return nil, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("circuit open: %w", err)
		}
		return err
	}
	return nil
}

// Bucket binds to the registry bucket. The bucket must already exist; run
// ProvisionBucket first.
func (c *NATSClient) Bucket(ctx context.Context) (jetstream.KeyValue, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}
	kv, err := js.KeyValue(ctx, c.bucket)
	if err != nil {
		return nil, fmt.Errorf("binding bucket %s: %w", c.bucket, err)
	}
	return kv, nil
}

// Probe verifies NATS connectivity. A missing bucket is not a failure: NATS
// being reachable is what matters before bootstrap has run.
func (c *NATSClient) Probe(ctx context.Context) health.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		js, err := c.jetStream()
		if err != nil {
			return nil, err
		}
		_, infoErr := js.KeyValue(ctx, c.bucket)
		if infoErr != nil && !errors.Is(infoErr, jetstream.ErrBucketNotFound) {
			return nil, fmt.Errorf("bucket info: %w", infoErr)
		}
		return nil, nil
	})

	return probeResult(natsProbeName, start, err)
}

// Close drains the shared connection if one was opened.
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleanup != nil {
		c.cleanup()
	}
	c.js, c.cleanup = nil, nil
	return nil
}

// realDialJetStream opens a NATS connection and returns a JetStream handle
// plus a cleanup function that drains the connection.
func realDialJetStream(url string) (kvManager, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("bgsrc-cloud"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream: %w", err)
	}

	return js, func() { nc.Drain() }, nil //nolint:errcheck
}
