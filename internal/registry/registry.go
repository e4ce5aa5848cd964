// Package registry maps logical service names to network addresses. It
// replaces annotation-driven client discovery with an explicit table that
// servers write to (Registrar) and clients read from (Resolver).
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNoInstances is returned when a service has no registered instances.
var ErrNoInstances = errors.New("no instances registered")

// Instance is one reachable copy of a service.
type Instance struct {
	ID           string    `json:"id"`
	Service      string    `json:"service"`
	Addr         string    `json:"addr"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// NewInstance returns an Instance of service at addr with a fresh ID.
func NewInstance(service, addr string) Instance {
	return Instance{
		ID:           uuid.NewString(),
		Service:      service,
		Addr:         addr,
		RegisteredAt: time.Now().UTC(),
	}
}

// BaseURL returns the instance address as an http URL. Addresses that
// already carry a scheme are returned unchanged.
func (i Instance) BaseURL() string {
	if strings.Contains(i.Addr, "://") {
		return strings.TrimRight(i.Addr, "/")
	}
	return "http://" + i.Addr
}

func (i Instance) validate() error {
	if i.Service == "" {
		return errors.New("instance service is required")
	}
	if i.ID == "" {
		return errors.New("instance id is required")
	}
	if i.Addr == "" {
		return errors.New("instance addr is required")
	}
	return nil
}

func (i Instance) encode() ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("encoding instance %s: %w", i.ID, err)
	}
	return data, nil
}

func decodeInstance(data []byte) (Instance, error) {
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return Instance{}, fmt.Errorf("decoding instance: %w", err)
	}
	return inst, nil
}

// Resolver looks up the live instances of a service.
type Resolver interface {
	Resolve(ctx context.Context, service string) ([]Instance, error)
}

// Registrar publishes and withdraws instances.
type Registrar interface {
	Register(ctx context.Context, inst Instance) error
	Deregister(ctx context.Context, inst Instance) error
}

// Registry is a backend that both resolves and registers.
type Registry interface {
	Resolver
	Registrar
}
