package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StaticRegistry serves a fixed service table from configuration. Register
// adds to the table for the life of the process, which lets a single binary
// or a test wire itself without a shared backend.
type StaticRegistry struct {
	mu        sync.RWMutex
	instances map[string]map[string]Instance
}

// NewStaticRegistry builds a registry from a service → addresses table.
// Instance IDs are derived from the position in the list so they are stable.
func NewStaticRegistry(table map[string][]string) *StaticRegistry {
	r := &StaticRegistry{instances: make(map[string]map[string]Instance)}
	for service, addrs := range table {
		for i, addr := range addrs {
			inst := Instance{
				ID:      fmt.Sprintf("%s-static-%d", service, i),
				Service: service,
				Addr:    addr,
			}
			r.put(inst)
		}
	}
	return r
}

func (r *StaticRegistry) put(inst Instance) {
	byID, ok := r.instances[inst.Service]
	if !ok {
		byID = make(map[string]Instance)
		r.instances[inst.Service] = byID
	}
	byID[inst.ID] = inst
}

func (r *StaticRegistry) Register(_ context.Context, inst Instance) error {
	if err := inst.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(inst)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, inst Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances[inst.Service], inst.ID)
	return nil
}

// Resolve returns the instances of service sorted by ID.
func (r *StaticRegistry) Resolve(_ context.Context, service string) ([]Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := r.instances[service]
	if len(byID) == 0 {
		return nil, fmt.Errorf("%s: %w", service, ErrNoInstances)
	}
	out := make([]Instance, 0, len(byID))
	for _, inst := range byID {
		out = append(out, inst)
	}
	sortInstances(out)
	return out, nil
}

func sortInstances(in []Instance) {
	sort.Slice(in, func(a, b int) bool { return in[a].ID < in[b].ID })
}
