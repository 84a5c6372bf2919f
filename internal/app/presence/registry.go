/*
Package presence tracks which identities currently hold at least one open relay connection.
*/
package presence

import (
	"slices"
	"sync"
)

// Registry is a multiset of user ids counting open registered connections per identity.
// An id is online exactly while its count is positive. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{counts: make(map[string]int)}
}

// Register records one more connection for userID.
func (r *Registry) Register(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[userID]++
}

// Unregister records one fewer connection for userID, dropping the entry at zero.
// Unknown ids are ignored so duplicate disconnects are harmless.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count, ok := r.counts[userID]
	if !ok {
		return
	}

	if count <= 1 {
		delete(r.counts, userID)
		return
	}
	r.counts[userID] = count - 1
}

// Connections returns the open connection count for userID.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.counts[userID]
}

// IsOnline reports whether userID has any open connection.
func (r *Registry) IsOnline(userID string) bool {
	return r.Connections(userID) > 0
}

// OnlineUserIDs returns the online ids sorted ascending.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
