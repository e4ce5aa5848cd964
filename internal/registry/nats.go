package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/sony/gobreaker"
)

// kvStore is the slice of a JetStream key-value bucket the registry needs.
type kvStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Keys lists the keys matching a subject filter such as "user-server.*".
	Keys(ctx context.Context, filter string) ([]string, error)
}

var errKeyNotFound = errors.New("key not found")

// jetstreamKV adapts jetstream.KeyValue to kvStore.
type jetstreamKV struct {
	kv jetstream.KeyValue
}

func (j jetstreamKV) Put(ctx context.Context, key string, value []byte) error {
	_, err := j.kv.Put(ctx, key, value)
	return err
}

func (j jetstreamKV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := j.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errKeyNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (j jetstreamKV) Delete(ctx context.Context, key string) error {
	err := j.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (j jetstreamKV) Keys(ctx context.Context, filter string) ([]string, error) {
	lister, err := j.kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer lister.Stop() //nolint:errcheck

	var keys []string
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}

// NATSRegistry stores instances in a JetStream key-value bucket under
// <service>.<id>. The bucket TTL expires instances that stop heartbeating.
type NATSRegistry struct {
	store kvStore
	cb    *gobreaker.CircuitBreaker
}

// NewNATSRegistry returns a registry backed by an existing bucket.
func NewNATSRegistry(kv jetstream.KeyValue, cb *gobreaker.CircuitBreaker) *NATSRegistry {
	return &NATSRegistry{store: jetstreamKV{kv: kv}, cb: cb}
}

func natsKey(service, id string) string {
	return service + "." + id
}

func (r *NATSRegistry) Register(ctx context.Context, inst Instance) error {
	if err := inst.validate(); err != nil {
		return err
	}
	data, err := inst.encode()
	if err != nil {
		return err
	}
	_, err = r.cb.Execute(func() (any, error) {
		return nil, r.store.Put(ctx, natsKey(inst.Service, inst.ID), data)
	})
	if err != nil {
		return fmt.Errorf("registering %s/%s: %w", inst.Service, inst.ID, err)
	}
	return nil
}

func (r *NATSRegistry) Deregister(ctx context.Context, inst Instance) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, r.store.Delete(ctx, natsKey(inst.Service, inst.ID))
	})
	if err != nil {
		return fmt.Errorf("deregistering %s/%s: %w", inst.Service, inst.ID, err)
	}
	return nil
}

func (r *NATSRegistry) Resolve(ctx context.Context, service string) ([]Instance, error) {
	res, err := r.cb.Execute(func() (any, error) {
		keys, err := r.store.Keys(ctx, natsKey(service, "*"))
		if err != nil {
			return nil, err
		}

		var out []Instance
		for _, key := range keys {
			raw, err := r.store.Get(ctx, key)
			if errors.Is(err, errKeyNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("get %s: %w", key, err)
			}
			inst, err := decodeInstance(raw)
			if err != nil {
				slog.WarnContext(ctx, "skipping malformed registry entry", "key", key, "err", err)
				continue
			}
			out = append(out, inst)
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", service, err)
	}

	out, _ := res.([]Instance)
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", service, ErrNoInstances)
	}
	sortInstances(out)
	return out, nil
}
