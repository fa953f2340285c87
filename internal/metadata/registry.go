package metadata

import (
	"sort"
	"sync"
)

type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// GetModel returns the model with the given name, or nil.
func (r *Registry) GetModel(name string) *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name]
}

// AllModels returns all registered models sorted by name.
func (r *Registry) AllModels() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models
}

// Load replaces all models in the registry.
func (r *Registry) Load(models []*Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*Model, len(models))
	for _, m := range models {
		r.models[m.Name] = m
	}
}
