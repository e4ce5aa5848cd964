package user

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDirectory holds users in a map. It backs user-server when no
// database is configured and is seeded from users.seed.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]Info
}

// NewMemoryDirectory builds a directory holding users.
func NewMemoryDirectory(users ...Info) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]Info, len(users))}
	for _, info := range users {
		d.users[info.UID] = info
	}
	return d
}

func (d *MemoryDirectory) Lookup(_ context.Context, uid string) (Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info, ok := d.users[uid]
	if !ok {
		return Info{}, fmt.Errorf("%s: %w", uid, ErrNotFound)
	}
	return info, nil
}

// Put adds or replaces a user.
func (d *MemoryDirectory) Put(info Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[info.UID] = info
}

// Len reports how many users are held.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
