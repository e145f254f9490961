package corpus

import (
	"sort"
)

// Registry maps document ids to source URLs. It is immutable after
// construction.
type Registry struct {
	urls map[string]string
}

// NewRegistry copies urls into a new Registry.
func NewRegistry(urls map[string]string) *Registry {
	r := &Registry{urls: make(map[string]string, len(urls))}
	for id, url := range urls {
		r.urls[id] = url
	}
	return r
}

// URL returns the URL registered for id.
func (r *Registry) URL(id string) (string, bool) {
	url, ok := r.urls[id]
	return url, ok
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.urls))
	for id := range r.urls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered documents.
func (r *Registry) Len() int {
	return len(r.urls)
}

// Equal reports whether both registries hold the same pairs.
func (r *Registry) Equal(other *Registry) bool {
	if r.Len() != other.Len() {
		return false
	}
	for id, url := range r.urls {
		if u, ok := other.urls[id]; !ok || u != url {
			return false
		}
	}
	return true
}
