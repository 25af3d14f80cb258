// Package routing maps model names to the provider adapter serving them.
// The routing table is derived from the tracker's versioned catalog and
// rebuilt lazily: a lookup that observes a newer catalog version replaces
// the whole table before resolving.
package routing

import (
	"sort"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
)

// CatalogSource is the slice of the tracker the router depends on.
type CatalogSource interface {
	// Catalog returns a consistent snapshot of provider model lists and the
	// version it corresponds to.
	Catalog() (map[string][]string, uint64)

	// Provider returns the registered adapter by name.
	Provider(name string) (domain.Provider, bool)
}

// ModelRouter implements domain.ProviderResolver on top of a CatalogSource.
type ModelRouter struct {
	source CatalogSource

	mu      sync.RWMutex
	table   map[string]domain.Provider
	version uint64
	built   bool
}

// NewRouter creates a router over the given catalog source.
func NewRouter(source CatalogSource) *ModelRouter {
	return &ModelRouter{source: source}
}

// GetProvider resolves a model name to its adapter. Unknown models produce a
// ModelNotFoundError listing every currently routable model.
func (r *ModelRouter) GetProvider(model string) (domain.Provider, error) {
	if model == "" {
		return nil, &domain.ModelNotFoundError{Model: model}
	}

	table := r.currentTable()
	if p, ok := table[model]; ok {
		return p, nil
	}

	known := make([]string, 0, len(table))
	for m := range table {
		known = append(known, m)
	}
	return nil, &domain.ModelNotFoundError{Model: model, KnownModels: known}
}

// ListAvailableModels returns every routable model with its provider, sorted
// by provider then model.
func (r *ModelRouter) ListAvailableModels() []domain.ModelInfo {
	catalog, _ := r.source.Catalog()

	providers := make([]string, 0, len(catalog))
	for name := range catalog {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	var models []domain.ModelInfo
	for _, name := range providers {
		sorted := make([]string, len(catalog[name]))
		copy(sorted, catalog[name])
		sort.Strings(sorted)
		for _, model := range sorted {
			models = append(models, domain.ModelInfo{Model: model, Provider: name})
		}
	}
	return models
}

// currentTable returns the routing table for the catalog's current version,
// rebuilding it wholesale when the version advanced.
func (r *ModelRouter) currentTable() map[string]domain.Provider {
	_, version := r.source.Catalog()

	r.mu.RLock()
	if r.built && r.version == version {
		table := r.table
		r.mu.RUnlock()
		return table
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have rebuilt while we waited for the lock.
	catalog, version := r.source.Catalog()
	if r.built && r.version == version {
		return r.table
	}

	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make(map[string]domain.Provider)
	for _, name := range names {
		p, ok := r.source.Provider(name)
		if !ok {
			continue
		}
		for _, model := range catalog[name] {
			// Deterministic on model name collisions: first provider in
			// name order wins.
			if _, exists := table[model]; !exists {
				table[model] = p
			}
		}
	}

	r.table = table
	r.version = version
	r.built = true
	return table
}
