package model

import (
	"sort"
	"sync"
)

// Registry stores loaded model instances.
type Registry struct {
	models map[string]*Instance
	mu     sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Instance),
	}
}

// Set adds a model instance to the registry.
func (r *Registry) Set(instance *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[instance.ID] = instance
}

// Get returns the model instance with the given ID.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.models[id]
	return instance, ok
}

// MustGet returns the model instance with the given ID or ErrNotFound.
func (r *Registry) MustGet(id string) (*Instance, error) {
	instance, ok := r.Get(id)
	if !ok {
		return nil, &NotFoundError{ID: id}
	}

	return instance, nil
}

// List returns all model instances ordered by Order, then ID.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*Instance, 0, len(r.models))
	for _, instance := range r.models {
		instances = append(instances, instance)
	}

	sort.Slice(instances, func(i, j int) bool {
		oi, oj := order(instances[i]), order(instances[j])
		if oi != oj {
			return oi < oj
		}
		return instances[i].ID < instances[j].ID
	})

	return instances
}

// Delete deletes the model instance with the given ID.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.models, id)
}

func order(mi *Instance) int {
	if mi.Config == nil {
		return 0
	}
	return mi.Config.Order
}
