package registry

import (
	"context"
	"sync"
)

// Balancer picks instances round-robin per service on top of a Resolver.
type Balancer struct {
	resolver Resolver

	mu   sync.Mutex
	next map[string]uint64
}

// NewBalancer returns a round-robin Balancer over r.
func NewBalancer(r Resolver) *Balancer {
	return &Balancer{resolver: r, next: make(map[string]uint64)}
}

// Pick resolves service and returns the next instance in rotation.
func (b *Balancer) Pick(ctx context.Context, service string) (Instance, error) {
	order, err := b.Order(ctx, service)
	if err != nil {
		return Instance{}, err
	}
	return order[0], nil
}

// Order resolves service and returns every instance, rotated so the
// instance whose turn it is comes first. Callers that retry walk the slice.
func (b *Balancer) Order(ctx context.Context, service string) ([]Instance, error) {
	instances, err := b.resolver.Resolve(ctx, service)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	start := b.next[service] % uint64(len(instances))
	b.next[service]++
	b.mu.Unlock()

	out := make([]Instance, 0, len(instances))
	out = append(out, instances[start:]...)
	out = append(out, instances[:start]...)
	return out, nil
}
