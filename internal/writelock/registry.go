// Package writelock tracks which subscription may write to which port.
package writelock

import (
	"sort"

	"github.com/codefionn/wsserial/internal/protocol"
)

// Registry maps a port name to the subscription holding its write lock.
// It is confined to the arbiter goroutine.
type Registry struct {
	locks map[string]string
}

func NewRegistry() *Registry {
	return &Registry{locks: make(map[string]string)}
}

// TryLock grants port to sub. Locking a port sub already holds succeeds.
func (r *Registry) TryLock(port, sub string) error {
	if owner, ok := r.locks[port]; ok {
		if owner == sub {
			return nil
		}
		return protocol.AlreadyWriteLocked(port)
	}
	r.locks[port] = sub
	return nil
}

// CheckOwned succeeds only if sub holds the lock on port.
func (r *Registry) CheckOwned(port, sub string) error {
	owner, ok := r.locks[port]
	if !ok {
		return protocol.NeedWriteLock(port)
	}
	if owner != sub {
		return protocol.AlreadyWriteLocked(port)
	}
	return nil
}

// Unlock releases port. Releasing an unlocked port succeeds; releasing
// somebody else's lock does not.
func (r *Registry) Unlock(port, sub string) error {
	owner, ok := r.locks[port]
	if !ok {
		return nil
	}
	if owner != sub {
		return protocol.AlreadyWriteLocked(port)
	}
	delete(r.locks, port)
	return nil
}

func (r *Registry) UnlockIfOwnedBy(port, sub string) {
	if owner, ok := r.locks[port]; ok && owner == sub {
		delete(r.locks, port)
	}
}

// UnlockAllFor releases every lock held by sub and returns the freed ports.
func (r *Registry) UnlockAllFor(sub string) []string {
	var freed []string
	for port, owner := range r.locks {
		if owner == sub {
			delete(r.locks, port)
			freed = append(freed, port)
		}
	}
	sort.Strings(freed)
	return freed
}

// Clear removes the lock on port whoever holds it.
func (r *Registry) Clear(port string) {
	delete(r.locks, port)
}

// Owners returns a copy of the lock table.
func (r *Registry) Owners() map[string]string {
	out := make(map[string]string, len(r.locks))
	for port, owner := range r.locks {
		out[port] = owner
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.locks)
}
