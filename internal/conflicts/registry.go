package conflicts

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry keeps one Store per merge session so several sessions can run
// side by side in one process.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry() *Registry {
	return &Registry{stores: map[string]*Store{}}
}

// New creates a store under a fresh session id.
func (r *Registry) New() (string, *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	store := NewStore()
	r.stores[id] = store
	return id, store
}

func (r *Registry) Get(id string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[id]
	return store, ok
}

// Delete forgets the session. The store itself stays usable by holders.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stores, id)
}

func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
