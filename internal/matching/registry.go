package matching

import (
	"fmt"
	"sort"
	"sync"
)

// Options configures the built-in strategies.
type Options struct {
	Threshold          float64
	EmbeddingThreshold float64
	EmbeddingDims      int
	Links              map[string]string
}

// Registry holds named matching strategies for selection by config.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns a registry with the token, embedding and canonical
// strategies registered under their names.
func NewRegistry(opts Options) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(TokenSimilarity{Threshold: opts.Threshold})
	r.Register(EmbeddingSimilarity{
		Embedder:  HashingEmbedder{Dims: opts.EmbeddingDims},
		Threshold: opts.EmbeddingThreshold,
	})
	r.Register(CanonicalJoin{Links: opts.Links})
	return r
}

// Register adds or replaces a strategy under its Name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy by name, or an error if not found.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("matching strategy %q not found", name)
	}
	return s, nil
}

// List returns all registered strategy names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
